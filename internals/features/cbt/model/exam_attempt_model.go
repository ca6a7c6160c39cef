// file: internals/features/cbt/model/exam_attempt_model.go
package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

/*
=========================================================

	EXAM ATTEMPTS
	1 row = 1 attempt started through this service
	- status    : lifecycle of the attempt as seen by the BFF
	- deadline  : started_at + time limit, used by the sweeper
	- last_error: why the last submit failed (expired attempts)

=========================================================
*/

type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "not_started"
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitting AttemptStatus = "submitting"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptExpired    AttemptStatus = "expired"   // auto-submit failed, still unsubmitted
	AttemptAbandoned  AttemptStatus = "abandoned" // torn down by the user before submit
)

func (s AttemptStatus) Valid() bool {
	switch s {
	case AttemptNotStarted, AttemptInProgress, AttemptSubmitting,
		AttemptCompleted, AttemptExpired, AttemptAbandoned:
		return true
	}
	return false
}

// Terminal statuses never change again.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptCompleted || s == AttemptAbandoned
}

func (s AttemptStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid attempt status %q", string(s))
	}
	return string(s), nil
}

func (s *AttemptStatus) Scan(v any) error {
	switch t := v.(type) {
	case string:
		*s = AttemptStatus(t)
	case []byte:
		*s = AttemptStatus(t)
	case nil:
		*s = AttemptNotStarted
		return nil
	default:
		return fmt.Errorf("cannot scan %T into AttemptStatus", v)
	}
	if !s.Valid() {
		return fmt.Errorf("invalid attempt status %q", string(*s))
	}
	return nil
}

type ExamAttemptModel struct {
	// attempt id issued by the exam backend
	ExamAttemptID int64 `gorm:"primaryKey;autoIncrement:false;column:exam_attempt_id" json:"exam_attempt_id"`

	ExamAttemptSessionID string `gorm:"type:varchar(64);not null;index;column:exam_attempt_session_id" json:"-"`
	ExamAttemptUserID    int64  `gorm:"column:exam_attempt_user_id" json:"exam_attempt_user_id"`
	ExamAttemptExamID    int64  `gorm:"not null;column:exam_attempt_exam_id" json:"exam_attempt_exam_id"`
	ExamAttemptSubjectID int64  `gorm:"not null;column:exam_attempt_subject_id" json:"exam_attempt_subject_id"`

	ExamAttemptNumQuestions     int `gorm:"not null;column:exam_attempt_num_questions" json:"exam_attempt_num_questions"`
	ExamAttemptTimeLimitMinutes int `gorm:"not null;column:exam_attempt_time_limit_minutes" json:"exam_attempt_time_limit_minutes"`

	ExamAttemptStatus AttemptStatus `gorm:"type:varchar(16);not null;index;column:exam_attempt_status" json:"exam_attempt_status"`

	ExamAttemptStartedAt   time.Time  `gorm:"type:timestamptz;not null;column:exam_attempt_started_at" json:"exam_attempt_started_at"`
	ExamAttemptDeadlineAt  time.Time  `gorm:"type:timestamptz;not null;index;column:exam_attempt_deadline_at" json:"exam_attempt_deadline_at"`
	ExamAttemptSubmittedAt *time.Time `gorm:"type:timestamptz;column:exam_attempt_submitted_at" json:"exam_attempt_submitted_at,omitempty"`

	// manual | timeout | sweeper
	ExamAttemptSubmitTrigger *string `gorm:"type:varchar(16);column:exam_attempt_submit_trigger" json:"exam_attempt_submit_trigger,omitempty"`
	ExamAttemptLastError     *string `gorm:"type:text;column:exam_attempt_last_error" json:"exam_attempt_last_error,omitempty"`

	ExamAttemptCreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;column:exam_attempt_created_at" json:"exam_attempt_created_at"`
	ExamAttemptUpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime;column:exam_attempt_updated_at" json:"exam_attempt_updated_at"`
}

func (ExamAttemptModel) TableName() string { return "exam_attempts" }
