package constants

// Purchasable item kinds.
const (
	ItemCourse     = "course"
	ItemDiploma    = "diploma"
	ItemActivation = "activation"
)
