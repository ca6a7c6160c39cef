package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	sessmodel "edumarket_bff/internals/features/session/model"
	"edumarket_bff/internals/upstream"
)

/* ---------- exam backend ---------- */

type fakeExamAPI struct {
	mu sync.Mutex

	perPage      int
	startID      int64
	startErr     error
	questionsErr error
	submitErr    error

	// answerErr is consulted per SubmitAnswer call; nil means success.
	answerErr  func(questionID int64, call int) error
	progressFn func(call int) (upstream.Progress, error)
	// beforePage runs before a page is answered
	beforePage func(page int)

	starts        int
	submits       int
	answerCalls   map[int64]int
	progressCalls int
}

func newFakeExamAPI() *fakeExamAPI {
	return &fakeExamAPI{perPage: 10, startID: 900, answerCalls: map[int64]int{}}
}

func questionID(n int) int64  { return int64(1000 + n) }
func choiceID(n, k int) int64 { return int64(n*10 + k) }

func staticToken(context.Context) (string, error) { return "access-token", nil }

func (f *fakeExamAPI) StartExam(_ context.Context, _ string, _ upstream.StartExamRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return 0, f.startErr
	}
	f.starts++
	return f.startID + int64(f.starts), nil
}

// AttemptQuestions always answers a full page, even past the end of the
// attempt, like a backend that does not know the attempt size.
func (f *fakeExamAPI) AttemptQuestions(_ context.Context, _ string, _ int64, page int) ([]upstream.Question, error) {
	f.mu.Lock()
	err, hook := f.questionsErr, f.beforePage
	f.mu.Unlock()
	if hook != nil {
		hook(page)
	}
	if err != nil {
		return nil, err
	}
	first := (page-1)*f.perPage + 1
	out := make([]upstream.Question, 0, f.perPage)
	for n := first; n < first+f.perPage; n++ {
		out = append(out, upstream.Question{
			ID:   questionID(n),
			Text: fmt.Sprintf("Question %d", n),
			Year: float64(2019),
			Choices: []upstream.Choice{
				{ID: choiceID(n, 1), Text: "A"},
				{ID: choiceID(n, 2), Text: "B"},
			},
		})
	}
	return out, nil
}

func (f *fakeExamAPI) AttemptProgress(_ context.Context, _ string, _ int64) (upstream.Progress, error) {
	f.mu.Lock()
	f.progressCalls++
	call, fn := f.progressCalls, f.progressFn
	f.mu.Unlock()
	if fn != nil {
		return fn(call)
	}
	return upstream.Progress{}, nil
}

func (f *fakeExamAPI) SubmitAnswer(_ context.Context, _ string, _ int64, qid, _ int64) error {
	f.mu.Lock()
	f.answerCalls[qid]++
	call, fn := f.answerCalls[qid], f.answerErr
	f.mu.Unlock()
	if fn != nil {
		return fn(qid, call)
	}
	return nil
}

func (f *fakeExamAPI) SubmitAttempt(_ context.Context, _ string, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	return f.submitErr
}

func (f *fakeExamAPI) MediaURL(path string) string { return path }

func (f *fakeExamAPI) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

func (f *fakeExamAPI) setBeforePage(fn func(page int)) {
	f.mu.Lock()
	f.beforePage = fn
	f.mu.Unlock()
}

func (f *fakeExamAPI) setSubmitErr(err error) {
	f.mu.Lock()
	f.submitErr = err
	f.mu.Unlock()
}

/* ---------- ticker ---------- */

type fakeTicker struct{ ch chan time.Time }

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               {}

type tickerHub struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (h *tickerHub) factory(time.Duration) Ticker {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	h.tickers = append(h.tickers, t)
	return t
}

func (h *tickerHub) last() *fakeTicker {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tickers[len(h.tickers)-1]
}

// tick delivers n ticks; each send blocks until the countdown took it.
func (t *fakeTicker) tick(n int) {
	for i := 0; i < n; i++ {
		t.ch <- time.Now()
	}
}

/* ---------- session binder ---------- */

type fakeBinder struct {
	mu      sync.Mutex
	bound   map[string]int64
	cleared []int64
}

func newFakeBinder() *fakeBinder { return &fakeBinder{bound: map[string]int64{}} }

func (b *fakeBinder) SetActiveAttempt(_ context.Context, s *sessmodel.Session, attemptID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bound[s.ID] = attemptID
	return nil
}

func (b *fakeBinder) ClearActiveAttempt(_ context.Context, sessionID string, attemptID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bound[sessionID] == attemptID {
		delete(b.bound, sessionID)
	}
	b.cleared = append(b.cleared, attemptID)
	return nil
}

func (b *fakeBinder) boundTo(sessionID string) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.bound[sessionID]
	return id, ok
}
