package constants

// Roles as the upstream access token carries them.
const (
	RoleStudent     = "student"
	RoleInstitution = "institution"
	RoleTutor       = "tutor"
	RoleAdmin       = "admin"
	RoleSuperAdmin  = "superadmin"
)
