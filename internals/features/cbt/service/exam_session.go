package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"edumarket_bff/internals/features/cbt/dto"
	"edumarket_bff/internals/features/cbt/model"
	helper "edumarket_bff/internals/helpers"
	"edumarket_bff/internals/helpers/logger"
	"edumarket_bff/internals/helpers/metrics"
	"edumarket_bff/internals/upstream"
)

const (
	TriggerManual  = "manual"
	TriggerTimeout = "timeout"
	TriggerSweeper = "sweeper"
)

// StatusHook is told about every status change after it happened.
type StatusHook func(s *ExamSession, status model.AttemptStatus, trigger, lastErr string)

type sessionParams struct {
	api           ExamAPI
	tokens        TokenSource
	sessionID     string
	userID        int64
	attemptID     int64
	req           dto.StartExamRequest
	pageSize      int
	newTicker     TickerFactory
	submitTimeout time.Duration
	onStatus      StatusHook
	metrics       *metrics.Metrics
}

// ExamSession drives one timed, paged attempt:
// not_started -> in_progress -> submitting -> completed, or expired when the
// timeout submit fails.
type ExamSession struct {
	api           ExamAPI
	tokens        TokenSource
	sessionID     string
	userID        int64
	attemptID     int64
	examID        int64
	subjectID     int64
	numQuestions  int
	timeLimit     int // minutes
	pageSize      int
	newTicker     TickerFactory
	submitTimeout time.Duration
	onStatus      StatusHook
	metrics       *metrics.Metrics
	log           *logrus.Entry

	answers *AnswerBook
	submits singleflight.Group

	mu          sync.Mutex
	status      model.AttemptStatus
	startedAt   time.Time
	countdown   *Countdown
	page        int
	questions   []upstream.Question
	noQuestions bool
	lastErr     string
	saving      int // answer saves in flight

	progress        upstream.Progress
	progressIssued  uint64
	progressApplied uint64

	// page loads, newest wins
	navIssued  uint64
	navApplied uint64
}

func newExamSession(p sessionParams) *ExamSession {
	if p.pageSize <= 0 {
		p.pageSize = 10
	}
	if p.submitTimeout <= 0 {
		p.submitTimeout = 15 * time.Second
	}
	return &ExamSession{
		api:           p.api,
		tokens:        p.tokens,
		sessionID:     p.sessionID,
		userID:        p.userID,
		attemptID:     p.attemptID,
		examID:        p.req.ExamID,
		subjectID:     p.req.SubjectID,
		numQuestions:  p.req.NumQuestions,
		timeLimit:     p.req.TimeLimitMinutes,
		pageSize:      p.pageSize,
		newTicker:     p.newTicker,
		submitTimeout: p.submitTimeout,
		onStatus:      p.onStatus,
		metrics:       p.metrics,
		log:           logger.WithAttempt(p.attemptID).WithField("session_id", p.sessionID),
		answers:       NewAnswerBook(),
		status:        model.AttemptNotStarted,
	}
}

func (s *ExamSession) AttemptID() int64 { return s.attemptID }
func (s *ExamSession) SessionID() string { return s.sessionID }
func (s *ExamSession) UserID() int64 { return s.userID }

func (s *ExamSession) Status() model.AttemptStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *ExamSession) TotalPages() int {
	return helper.TotalPages(int64(s.numQuestions), s.pageSize)
}

// begin starts the countdown and loads page 1 together with the progress snapshot.
func (s *ExamSession) begin(ctx context.Context) error {
	s.mu.Lock()
	s.status = model.AttemptInProgress
	s.startedAt = time.Now()
	s.countdown = StartCountdown(s.timeLimit*60, s.newTicker, s.autoSubmit)
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.LoadPage(gctx, 1)
		return err
	})
	g.Go(func() error {
		s.refreshProgress(gctx)
		return nil
	})
	return g.Wait()
}

/* ===================== PAGES ===================== */

// LoadPage replaces the in-memory question list with the given 1-based page.
// A failed fetch yields an empty page flagged no_questions; it is not retried.
// A fetch overtaken by a later navigation is dropped and the current page returned.
func (s *ExamSession) LoadPage(ctx context.Context, page int) (dto.PageView, error) {
	if page < 1 || page > s.TotalPages() {
		return dto.PageView{}, ErrPageOutOfRange
	}
	s.mu.Lock()
	st := s.status
	s.navIssued++
	ticket := s.navIssued
	s.mu.Unlock()
	if st == model.AttemptNotStarted || st.Terminal() {
		return dto.PageView{}, ErrAttemptNotActive
	}

	token, err := s.tokens(ctx)
	if err != nil {
		return dto.PageView{}, err
	}
	qs, err := s.api.AttemptQuestions(ctx, token, s.attemptID, page)
	if err != nil {
		if upstream.KindOf(err) == upstream.KindAuthentication {
			return dto.PageView{}, err
		}
		s.log.WithError(err).WithField("page", page).Warn("failed to load questions")
		qs = nil
	}

	// The last page holds only the remainder.
	limit := s.numQuestions - (page-1)*s.pageSize
	if limit > s.pageSize {
		limit = s.pageSize
	}
	if len(qs) > limit {
		qs = qs[:limit]
	}
	for _, q := range qs {
		if q.UserAnswerID != nil && *q.UserAnswerID > 0 {
			s.answers.Seed(q.ID, *q.UserAnswerID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket <= s.navApplied {
		s.log.WithField("page", page).Debug("stale page discarded")
		return s.pageViewLocked(), nil
	}
	s.navApplied = ticket
	s.page = page
	s.questions = qs
	s.noQuestions = len(qs) == 0
	return s.pageViewLocked(), nil
}

// Jump loads the page that holds question number n.
func (s *ExamSession) Jump(ctx context.Context, n int) (dto.PageView, error) {
	if n < 1 || n > s.numQuestions {
		return dto.PageView{}, ErrQuestionOutOfRange
	}
	return s.LoadPage(ctx, helper.PageOf(n, s.pageSize))
}

func (s *ExamSession) CurrentPage() dto.PageView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageViewLocked()
}

func (s *ExamSession) pageViewLocked() dto.PageView {
	total := s.TotalPages()
	page := s.page
	if page == 0 {
		page = 1
	}
	views := make([]dto.QuestionView, 0, len(s.questions))
	for i, q := range s.questions {
		v := dto.ToQuestionView((page-1)*s.pageSize+i+1, q, s.api.MediaURL(q.Image))
		if st, ok := s.answers.Get(q.ID); ok {
			choice := st.ChoiceID
			v.SelectedChoiceID = &choice
			v.AnswerStatus = string(st.Status)
			v.AnswerError = st.Error
		}
		views = append(views, v)
	}
	return dto.PageView{
		AttemptID:   s.attemptID,
		Page:        page,
		PageSize:    s.pageSize,
		TotalPages:  total,
		Indicator:   helper.PageIndicator(page, total),
		Questions:   views,
		NoQuestions: s.noQuestions,
	}
}

/* ===================== ANSWERS ===================== */

// SelectAnswer records the choice locally and saves it in the background.
func (s *ExamSession) SelectAnswer(ctx context.Context, questionID, choiceID int64) (AnswerState, error) {
	s.mu.Lock()
	if s.status != model.AttemptInProgress {
		s.mu.Unlock()
		return AnswerState{}, ErrAttemptNotActive
	}
	for _, q := range s.questions {
		if q.ID != questionID {
			continue
		}
		known := false
		for _, c := range q.Choices {
			if c.ID == choiceID {
				known = true
				break
			}
		}
		if !known {
			s.mu.Unlock()
			return AnswerState{}, ErrUnknownChoice
		}
	}
	st := s.answers.Select(questionID, choiceID)
	s.saving++
	s.mu.Unlock()

	go s.persist(st)
	return st, nil
}

// RetryAnswer re-sends a selection whose save failed.
func (s *ExamSession) RetryAnswer(ctx context.Context, questionID int64) (AnswerState, error) {
	prev, ok := s.answers.Get(questionID)
	if !ok || prev.Status != AnswerFailed {
		return AnswerState{}, ErrNothingToRetry
	}
	return s.SelectAnswer(ctx, questionID, prev.ChoiceID)
}

func (s *ExamSession) Answer(questionID int64) (AnswerState, bool) {
	return s.answers.Get(questionID)
}

func (s *ExamSession) persist(st AnswerState) {
	defer func() {
		s.mu.Lock()
		s.saving--
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.submitTimeout)
	defer cancel()

	token, err := s.tokens(ctx)
	if err == nil {
		err = s.api.SubmitAnswer(ctx, token, s.attemptID, st.QuestionID, st.ChoiceID)
	}
	if _, applied := s.answers.Resolve(st.QuestionID, st.Seq, err); !applied {
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("question_id", st.QuestionID).Warn("failed to save answer")
		return
	}
	s.refreshProgress(ctx)
}

// WaitSaves blocks until background answer saves finish or ctx is done.
func (s *ExamSession) WaitSaves(ctx context.Context) {
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for {
		s.mu.Lock()
		n := s.saving
		s.mu.Unlock()
		if n == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

/* ===================== PROGRESS ===================== */

// refreshProgress fetches a snapshot and applies it only if no later request
// has already been applied.
func (s *ExamSession) refreshProgress(ctx context.Context) {
	s.mu.Lock()
	s.progressIssued++
	ticket := s.progressIssued
	s.mu.Unlock()

	token, err := s.tokens(ctx)
	if err != nil {
		return
	}
	p, err := s.api.AttemptProgress(ctx, token, s.attemptID)
	if err != nil {
		s.log.WithError(err).Debug("failed to load progress")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket <= s.progressApplied {
		s.log.WithField("ticket", ticket).Debug("stale progress snapshot discarded")
		return
	}
	s.progress = p
	s.progressApplied = ticket
}

// Index lists every question number with its answered flag and page.
func (s *ExamSession) Index() dto.IndexView {
	s.mu.Lock()
	defer s.mu.Unlock()

	answeredByNumber := map[int]bool{}
	idByNumber := map[int]int64{}
	for _, it := range s.progress.Progress {
		answeredByNumber[it.QuestionNumber] = it.IsAnswered
		if it.QuestionID > 0 {
			idByNumber[it.QuestionNumber] = it.QuestionID
		}
	}
	if s.page > 0 {
		for i, q := range s.questions {
			idByNumber[(s.page-1)*s.pageSize+i+1] = q.ID
		}
	}

	out := dto.IndexView{Entries: make([]dto.IndexEntry, 0, s.numQuestions), Total: s.numQuestions}
	for n := 1; n <= s.numQuestions; n++ {
		answered := answeredByNumber[n]
		if id, ok := idByNumber[n]; ok {
			if st, ok := s.answers.Get(id); ok && st.Status != AnswerFailed {
				answered = true
			}
		}
		page := helper.PageOf(n, s.pageSize)
		out.Entries = append(out.Entries, dto.IndexEntry{
			Number:   n,
			Answered: answered,
			Page:     page,
			Current:  page == s.page,
		})
		if answered {
			out.AnsweredCount++
		}
	}
	return out
}

/* ===================== SUBMIT ===================== */

func (s *ExamSession) autoSubmit() {
	s.log.Info("time is up, submitting attempt")
	_, _ = s.Submit(context.Background(), TriggerTimeout)
}

// Submit sends the attempt once. Concurrent calls share one upstream request
// and a completed attempt is never submitted again.
func (s *ExamSession) Submit(ctx context.Context, trigger string) (dto.SubmitResult, error) {
	s.mu.Lock()
	switch s.status {
	case model.AttemptNotStarted:
		s.mu.Unlock()
		return dto.SubmitResult{}, ErrAttemptNotStarted
	case model.AttemptCompleted:
		r := s.resultLocked()
		s.mu.Unlock()
		return r, nil
	case model.AttemptAbandoned:
		s.mu.Unlock()
		return dto.SubmitResult{}, ErrAttemptNotActive
	}
	s.status = model.AttemptSubmitting
	s.mu.Unlock()

	_, err, _ := s.submits.Do("submit", func() (any, error) {
		return nil, s.submitOnce(trigger)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultLocked(), err
}

func (s *ExamSession) submitOnce(trigger string) error {
	s.mu.Lock()
	if s.status == model.AttemptCompleted {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.submitTimeout)
	defer cancel()

	s.WaitSaves(ctx)
	token, err := s.tokens(ctx)
	if err == nil {
		err = s.api.SubmitAttempt(ctx, token, s.attemptID)
	}

	s.mu.Lock()
	if err == nil {
		s.status = model.AttemptCompleted
		s.lastErr = ""
		cd := s.countdown
		s.mu.Unlock()

		if cd != nil {
			cd.Stop()
		}
		s.metrics.ObserveSubmission(trigger, "ok")
		s.log.WithField("trigger", trigger).Info("attempt submitted")
		s.notify(model.AttemptCompleted, trigger, "")
		return nil
	}

	if s.countdown != nil && s.countdown.Expired() {
		s.status = model.AttemptExpired
	} else {
		s.status = model.AttemptInProgress
	}
	s.lastErr = upstream.MessageOf(err, "Failed to submit exam")
	status, lastErr := s.status, s.lastErr
	s.mu.Unlock()

	s.metrics.ObserveSubmission(trigger, "failed")
	entry := s.log.WithError(err).WithField("trigger", trigger)
	if trigger == TriggerTimeout {
		entry.Error("auto-submit failed, attempt left expired")
	} else {
		entry.Warn("submit failed")
	}
	s.notify(status, trigger, lastErr)
	return err
}

func (s *ExamSession) resultLocked() dto.SubmitResult {
	r := dto.SubmitResult{
		AttemptID: s.attemptID,
		Status:    string(s.status),
		LastError: s.lastErr,
	}
	if s.status == model.AttemptCompleted {
		r.ResultsPath = ResultsPath(s.attemptID)
	}
	return r
}

func ResultsPath(attemptID int64) string {
	return "/performance/" + strconv.FormatInt(attemptID, 10)
}

func (s *ExamSession) notify(status model.AttemptStatus, trigger, lastErr string) {
	if s.onStatus != nil {
		s.onStatus(s, status, trigger, lastErr)
	}
}

/* ===================== TEARDOWN ===================== */

// Teardown stops the countdown and abandons an unsubmitted attempt.
func (s *ExamSession) Teardown() {
	s.mu.Lock()
	cd := s.countdown
	abandon := s.status != model.AttemptCompleted && s.status != model.AttemptAbandoned
	if abandon {
		s.status = model.AttemptAbandoned
	}
	s.mu.Unlock()

	if cd != nil {
		cd.Stop()
	}
	if abandon {
		s.notify(model.AttemptAbandoned, "", "")
	}
}

// stopTimer halts the countdown without changing status. Used on shutdown so
// the sweeper can finish the attempt after a restart.
func (s *ExamSession) stopTimer() {
	s.mu.Lock()
	cd := s.countdown
	s.mu.Unlock()
	if cd != nil {
		cd.Stop()
	}
}

/* ===================== STATE ===================== */

func (s *ExamSession) State() dto.ExamState {
	idx := s.Index()
	pending, confirmed, failed := s.answers.Counts()

	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := s.timeLimit * 60
	if s.countdown != nil {
		remaining = s.countdown.Remaining()
	}
	st := dto.ExamState{
		AttemptID:        s.attemptID,
		ExamID:           s.examID,
		SubjectID:        s.subjectID,
		Status:           string(s.status),
		NumQuestions:     s.numQuestions,
		TimeLimitMinutes: s.timeLimit,
		RemainingSeconds: remaining,
		RemainingClock:   FormatClock(remaining),
		AnsweredCount:    idx.AnsweredCount,
		Answers:          dto.AnswerCounts{Pending: pending, Confirmed: confirmed, Failed: failed},
		LastError:        s.lastErr,
		Page:             s.pageViewLocked(),
	}
	if s.status == model.AttemptCompleted {
		st.ResultsPath = ResultsPath(s.attemptID)
	}
	return st
}
