package dto

import (
	"strconv"

	"edumarket_bff/internals/upstream"
)

/* ===================== REQUESTS ===================== */

type StartExamRequest struct {
	ExamID           int64 `json:"exam_id" validate:"required,gt=0"`
	SubjectID        int64 `json:"subject_id" validate:"required,gt=0"`
	NumQuestions     int   `json:"num_questions" validate:"required,gte=1,lte=500"`
	TimeLimitMinutes int   `json:"time_limit_minutes" validate:"required,gte=1,lte=600"`
}

func (r StartExamRequest) ToUpstream() upstream.StartExamRequest {
	return upstream.StartExamRequest{
		Exam:             r.ExamID,
		Subject:          r.SubjectID,
		NumQuestions:     r.NumQuestions,
		TimeLimitMinutes: r.TimeLimitMinutes,
	}
}

type SelectAnswerRequest struct {
	QuestionID int64 `json:"question_id" validate:"required,gt=0"`
	ChoiceID   int64 `json:"choice_id" validate:"required,gt=0"`
}

/* ===================== RESPONSES ===================== */

type ChoiceView struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

type QuestionView struct {
	Number           int          `json:"number"`
	ID               int64        `json:"id"`
	Text             string       `json:"text"`
	Image            string       `json:"image,omitempty"`
	Year             string       `json:"year"`
	Choices          []ChoiceView `json:"choices"`
	SelectedChoiceID *int64       `json:"selected_choice_id"`
	AnswerStatus     string       `json:"answer_status,omitempty"`
	AnswerError      string       `json:"answer_error,omitempty"`
}

type PageView struct {
	AttemptID   int64          `json:"attempt_id"`
	Page        int            `json:"page"`
	PageSize    int            `json:"page_size"`
	TotalPages  int            `json:"total_pages"`
	Indicator   string         `json:"indicator"`
	Questions   []QuestionView `json:"questions"`
	NoQuestions bool           `json:"no_questions"`
}

type IndexEntry struct {
	Number   int  `json:"number"`
	Answered bool `json:"answered"`
	Page     int  `json:"page"`
	Current  bool `json:"current"`
}

type IndexView struct {
	Entries       []IndexEntry `json:"entries"`
	AnsweredCount int          `json:"answered_count"`
	Total         int          `json:"total"`
}

type AnswerCounts struct {
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
}

type ExamState struct {
	AttemptID        int64        `json:"attempt_id"`
	ExamID           int64        `json:"exam_id"`
	SubjectID        int64        `json:"subject_id"`
	Status           string       `json:"status"`
	NumQuestions     int          `json:"num_questions"`
	TimeLimitMinutes int          `json:"time_limit_minutes"`
	RemainingSeconds int          `json:"remaining_seconds"`
	RemainingClock   string       `json:"remaining_clock"`
	AnsweredCount    int          `json:"answered_count"`
	Answers          AnswerCounts `json:"answers"`
	LastError        string       `json:"last_error,omitempty"`
	ResultsPath      string       `json:"results_path,omitempty"`
	Page             PageView     `json:"page"`
}

type SubmitResult struct {
	AttemptID   int64  `json:"attempt_id"`
	Status      string `json:"status"`
	ResultsPath string `json:"results_path,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

type ActivationView struct {
	Unlocked bool   `json:"unlocked"`
	Redirect string `json:"redirect,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

// NormalizeYear renders the year field as text; a missing year is blank.
func NormalizeYear(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

func ToQuestionView(number int, q upstream.Question, image string) QuestionView {
	choices := make([]ChoiceView, 0, len(q.Choices))
	for _, c := range q.Choices {
		choices = append(choices, ChoiceView{ID: c.ID, Text: c.Text})
	}
	return QuestionView{
		Number:  number,
		ID:      q.ID,
		Text:    q.Text,
		Image:   image,
		Year:    NormalizeYear(q.Year),
		Choices: choices,
	}
}
