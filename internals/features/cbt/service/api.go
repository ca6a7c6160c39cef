package service

import (
	"context"
	"errors"

	"edumarket_bff/internals/upstream"
)

var (
	ErrAttemptNotActive   = errors.New("attempt is not accepting answers")
	ErrAttemptNotStarted  = errors.New("attempt has not started")
	ErrAttemptInProgress  = errors.New("an exam attempt is already in progress for this session")
	ErrNoActiveAttempt    = errors.New("no active exam attempt")
	ErrPageOutOfRange     = errors.New("page out of range")
	ErrQuestionOutOfRange = errors.New("question number out of range")
	ErrUnknownChoice      = errors.New("choice does not belong to question")
	ErrNothingToRetry     = errors.New("answer has no failed save to retry")
)

// ExamAPI is the slice of the upstream client an attempt needs.
type ExamAPI interface {
	StartExam(ctx context.Context, token string, req upstream.StartExamRequest) (int64, error)
	AttemptQuestions(ctx context.Context, token string, attemptID int64, page int) ([]upstream.Question, error)
	AttemptProgress(ctx context.Context, token string, attemptID int64) (upstream.Progress, error)
	SubmitAnswer(ctx context.Context, token string, attemptID, questionID, choiceID int64) error
	SubmitAttempt(ctx context.Context, token string, attemptID int64) error
	MediaURL(path string) string
}

// CatalogAPI serves the read-only exam screens around an attempt.
type CatalogAPI interface {
	ListExams(ctx context.Context) ([]upstream.Exam, error)
	ListSubjects(ctx context.Context, examID int64) ([]upstream.Subject, error)
	ActivationStatus(ctx context.Context, token string, examID, subjectID int64) (upstream.ActivationStatus, error)
	AttemptPerformance(ctx context.Context, token string, attemptID int64) (upstream.Performance, error)
	AttemptHistory(ctx context.Context, token string, page int) (upstream.Page[upstream.AttemptSummary], error)
}

// TokenSource yields a bearer token for the session that owns an attempt.
type TokenSource func(ctx context.Context) (string, error)
