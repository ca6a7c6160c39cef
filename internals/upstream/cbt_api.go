package upstream

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

type Exam struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Slug             string `json:"slug"`
	Description      string `json:"description"`
	TimeLimitMinutes int    `json:"time_limit_minutes"`
}

type Subject struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	QuestionCount int    `json:"question_count"`
}

type ActivationStatus struct {
	Unlocked bool `json:"unlocked"`
}

type StartExamRequest struct {
	Exam             int64 `json:"exam"`
	Subject          int64 `json:"subject"`
	NumQuestions     int   `json:"num_questions"`
	TimeLimitMinutes int   `json:"time_limit_minutes"`
}

type Choice struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// Question is one page entry. Year arrives as a number, a string or null.
type Question struct {
	ID           int64    `json:"id"`
	Text         string   `json:"text"`
	Image        string   `json:"image"`
	Year         any      `json:"year"`
	Choices      []Choice `json:"choices"`
	UserAnswerID *int64   `json:"user_answer_id"`
	IsAnswered   bool     `json:"is_answered"`
}

type ProgressItem struct {
	QuestionNumber int   `json:"question_number"`
	QuestionID     int64 `json:"question_id"`
	IsAnswered     bool  `json:"is_answered"`
}

type Progress struct {
	AnsweredCount int            `json:"answered_count"`
	Progress      []ProgressItem `json:"progress"`
}

type Performance struct {
	ID               int64            `json:"id"`
	UserName         string           `json:"user_name"`
	ExamTitle        string           `json:"exam_title"`
	SubjectName      string           `json:"subject_name"`
	NumQuestions     int              `json:"num_questions"`
	TimeLimitMinutes int              `json:"time_limit_minutes"`
	TimeTakenSeconds int              `json:"time_taken_seconds"`
	Score            float64          `json:"score"`
	CorrectCount     int              `json:"correct_count"`
	WrongCount       int              `json:"wrong_count"`
	PercentageScore  float64          `json:"percentage_score"`
	StartedAt        string           `json:"started_at"`
	SubmittedAt      string           `json:"submitted_at"`
	StudentAnswers   []map[string]any `json:"student_answers"`
	WrongAnswers     []map[string]any `json:"wrong_answers"`
}

type AttemptSummary struct {
	ID               int64   `json:"id"`
	ExamTitle        string  `json:"exam_title"`
	SubjectName      string  `json:"subject_name"`
	NumQuestions     int     `json:"num_questions"`
	Score            float64 `json:"score"`
	StartedAt        string  `json:"started_at"`
	SubmittedAt      string  `json:"submitted_at"`
	TimeTakenSeconds int     `json:"time_taken_seconds"`
	CorrectAnswers   int     `json:"correct_answers"`
	TotalQuestions   int     `json:"total_questions"`
}

func attemptPath(attemptID int64, suffix string) string {
	return "/cbt/attempts/" + strconv.FormatInt(attemptID, 10) + suffix
}

func (c *Client) ListExams(ctx context.Context) ([]Exam, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: "/cbt/exams/"})
	if err != nil {
		return nil, err
	}
	p, err := DecodeList[Exam](body)
	return p.Items, err
}

func (c *Client) ListSubjects(ctx context.Context, examID int64) ([]Subject, error) {
	body, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/cbt/exams/" + strconv.FormatInt(examID, 10) + "/subjects/",
		endpoint: "/cbt/exams/{id}/subjects/",
	})
	if err != nil {
		return nil, err
	}
	p, err := DecodeList[Subject](body)
	return p.Items, err
}

// ActivationStatus checks whether an exam (and optionally one subject) is unlocked for the user.
func (c *Client) ActivationStatus(ctx context.Context, token string, examID, subjectID int64) (ActivationStatus, error) {
	q := url.Values{}
	q.Set("exam", strconv.FormatInt(examID, 10))
	if subjectID > 0 {
		q.Set("subject", strconv.FormatInt(subjectID, 10))
	}
	var out ActivationStatus
	err := c.doJSON(ctx, request{
		method: http.MethodGet,
		path:   "/payments/activation-status/",
		token:  token,
		query:  q,
	}, &out)
	return out, err
}

func (c *Client) StartExam(ctx context.Context, token string, req StartExamRequest) (int64, error) {
	var out struct {
		ExamAttemptID int64 `json:"exam_attempt_id"`
	}
	if err := c.doJSON(ctx, request{
		method: http.MethodPost,
		path:   "/cbt/start-exam/",
		token:  token,
		body:   req,
	}, &out); err != nil {
		return 0, err
	}
	if out.ExamAttemptID == 0 {
		return 0, &Error{Kind: KindServer, Message: "Failed to start exam"}
	}
	return out.ExamAttemptID, nil
}

func (c *Client) AttemptQuestions(ctx context.Context, token string, attemptID int64, page int) ([]Question, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	body, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     attemptPath(attemptID, "/questions/"),
		endpoint: "/cbt/attempts/{id}/questions/",
		token:    token,
		query:    q,
	})
	if err != nil {
		return nil, err
	}
	p, err := DecodeList[Question](body)
	return p.Items, err
}

func (c *Client) AttemptProgress(ctx context.Context, token string, attemptID int64) (Progress, error) {
	var out Progress
	err := c.doJSON(ctx, request{
		method:   http.MethodGet,
		path:     attemptPath(attemptID, "/progress/"),
		endpoint: "/cbt/attempts/{id}/progress/",
		token:    token,
	}, &out)
	return out, err
}

func (c *Client) SubmitAnswer(ctx context.Context, token string, attemptID, questionID, choiceID int64) error {
	return c.doJSON(ctx, request{
		method:   http.MethodPost,
		path:     attemptPath(attemptID, "/submit-answer/"),
		endpoint: "/cbt/attempts/{id}/submit-answer/",
		token:    token,
		body: map[string]int64{
			"question_id": questionID,
			"choice_id":   choiceID,
		},
	}, nil)
}

func (c *Client) SubmitAttempt(ctx context.Context, token string, attemptID int64) error {
	return c.doJSON(ctx, request{
		method:   http.MethodPost,
		path:     attemptPath(attemptID, "/submit/"),
		endpoint: "/cbt/attempts/{id}/submit/",
		token:    token,
		body:     map[string]any{},
	}, nil)
}

func (c *Client) AttemptPerformance(ctx context.Context, token string, attemptID int64) (Performance, error) {
	var out Performance
	err := c.doJSON(ctx, request{
		method:   http.MethodGet,
		path:     attemptPath(attemptID, "/performance/"),
		endpoint: "/cbt/attempts/{id}/performance/",
		token:    token,
	}, &out)
	return out, err
}

func (c *Client) AttemptHistory(ctx context.Context, token string, page int) (Page[AttemptSummary], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	body, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/cbt/attempt-list/",
		token:  token,
		query:  q,
	})
	if err != nil {
		return Page[AttemptSummary]{}, err
	}
	return DecodeList[AttemptSummary](body)
}
