package service

import (
	"context"
	"sync"
	"time"

	"edumarket_bff/internals/features/cbt/dto"
	"edumarket_bff/internals/features/cbt/model"
	"edumarket_bff/internals/features/cbt/repository"
	sessmodel "edumarket_bff/internals/features/session/model"
	"edumarket_bff/internals/helpers/logger"
	"edumarket_bff/internals/helpers/metrics"
)

// SessionBinder records which attempt a session is taking.
type SessionBinder interface {
	SetActiveAttempt(ctx context.Context, s *sessmodel.Session, attemptID int64) error
	ClearActiveAttempt(ctx context.Context, sessionID string, attemptID int64) error
}

type RegistryConfig struct {
	PageSize      int
	NewTicker     TickerFactory
	SubmitTimeout time.Duration
}

// Registry owns the live attempts, at most one per session.
type Registry struct {
	api     ExamAPI
	repo    repository.AttemptRepository
	binder  SessionBinder
	metrics *metrics.Metrics
	cfg     RegistryConfig

	mu        sync.Mutex
	bySession map[string]*ExamSession
	starting  map[string]bool
}

func NewRegistry(api ExamAPI, repo repository.AttemptRepository, binder SessionBinder, m *metrics.Metrics, cfg RegistryConfig) *Registry {
	return &Registry{
		api:       api,
		repo:      repo,
		binder:    binder,
		metrics:   m,
		cfg:       cfg,
		bySession: map[string]*ExamSession{},
		starting:  map[string]bool{},
	}
}

// occupies reports whether an attempt in this status blocks a new start.
func occupies(st model.AttemptStatus) bool {
	return st == model.AttemptInProgress || st == model.AttemptSubmitting || st == model.AttemptExpired
}

// Start asks the exam backend for a new attempt and begins it.
func (r *Registry) Start(ctx context.Context, sess *sessmodel.Session, tokens TokenSource, req dto.StartExamRequest) (*ExamSession, error) {
	r.mu.Lock()
	if r.starting[sess.ID] {
		r.mu.Unlock()
		return nil, ErrAttemptInProgress
	}
	if cur, ok := r.bySession[sess.ID]; ok && occupies(cur.Status()) {
		r.mu.Unlock()
		return nil, ErrAttemptInProgress
	}
	r.starting[sess.ID] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.starting, sess.ID)
		r.mu.Unlock()
	}()

	token, err := tokens(ctx)
	if err != nil {
		return nil, err
	}
	attemptID, err := r.api.StartExam(ctx, token, req.ToUpstream())
	if err != nil {
		return nil, err
	}

	es := newExamSession(sessionParams{
		api:           r.api,
		tokens:        tokens,
		sessionID:     sess.ID,
		userID:        sess.Tokens.UserID,
		attemptID:     attemptID,
		req:           req,
		pageSize:      r.cfg.PageSize,
		newTicker:     r.cfg.NewTicker,
		submitTimeout: r.cfg.SubmitTimeout,
		onStatus:      r.onStatus,
		metrics:       r.metrics,
	})

	now := time.Now()
	rec := &model.ExamAttemptModel{
		ExamAttemptID:               attemptID,
		ExamAttemptSessionID:        sess.ID,
		ExamAttemptUserID:           sess.Tokens.UserID,
		ExamAttemptExamID:           req.ExamID,
		ExamAttemptSubjectID:        req.SubjectID,
		ExamAttemptNumQuestions:     req.NumQuestions,
		ExamAttemptTimeLimitMinutes: req.TimeLimitMinutes,
		ExamAttemptStatus:           model.AttemptInProgress,
		ExamAttemptStartedAt:        now,
		ExamAttemptDeadlineAt:       now.Add(time.Duration(req.TimeLimitMinutes) * time.Minute),
	}
	if err := r.repo.Create(ctx, rec); err != nil {
		es.log.WithError(err).Error("failed to record attempt")
	}
	if r.binder != nil {
		if err := r.binder.SetActiveAttempt(ctx, sess, attemptID); err != nil {
			es.log.WithError(err).Warn("failed to bind attempt to session")
		}
	}

	r.mu.Lock()
	prev := r.bySession[sess.ID]
	r.bySession[sess.ID] = es
	r.mu.Unlock()
	if prev != nil {
		prev.stopTimer()
	}

	if err := es.begin(ctx); err != nil {
		es.log.WithError(err).Warn("initial page load failed")
	}
	r.updateGauge()
	es.log.WithField("num_questions", req.NumQuestions).Info("attempt started")
	return es, nil
}

func (r *Registry) Active(sessionID string) (*ExamSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	es, ok := r.bySession[sessionID]
	if !ok {
		return nil, ErrNoActiveAttempt
	}
	return es, nil
}

// Discard tears down the session's attempt and forgets it.
func (r *Registry) Discard(sessionID string) error {
	r.mu.Lock()
	es, ok := r.bySession[sessionID]
	delete(r.bySession, sessionID)
	r.mu.Unlock()
	if !ok {
		return ErrNoActiveAttempt
	}
	es.Teardown()
	r.updateGauge()
	return nil
}

// Forget tears down the session's attempt if it has one. Used on sign-in and
// sign-out so an attempt never outlives the user who started it.
func (r *Registry) Forget(sessionID string) {
	if err := r.Discard(sessionID); err == nil {
		logger.Log.WithField("session_id", sessionID).Info("attempt discarded on sign-in change")
	}
}

// Live reports whether attemptID is driven by a countdown in this process.
func (r *Registry) Live(attemptID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, es := range r.bySession {
		if es.AttemptID() == attemptID {
			st := es.Status()
			return st == model.AttemptInProgress || st == model.AttemptSubmitting
		}
	}
	return false
}

func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, es := range r.bySession {
		if occupies(es.Status()) {
			n++
		}
	}
	return n
}

// Shutdown stops every countdown. Attempts stay in progress in the
// repository so the sweeper can finish them after a restart.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	live := make([]*ExamSession, 0, len(r.bySession))
	for _, es := range r.bySession {
		live = append(live, es)
	}
	r.mu.Unlock()

	for _, es := range live {
		es.stopTimer()
	}
	logger.Log.WithField("attempts", len(live)).Info("exam timers stopped")
}

func (r *Registry) onStatus(es *ExamSession, status model.AttemptStatus, trigger, lastErr string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.repo.UpdateStatus(ctx, es.AttemptID(), repository.AttemptUpdate{
		Status:    status,
		Trigger:   trigger,
		LastError: lastErr,
		At:        time.Now(),
	}); err != nil {
		es.log.WithError(err).Error("failed to record attempt status")
	}
	if r.binder != nil && status.Terminal() {
		if err := r.binder.ClearActiveAttempt(ctx, es.SessionID(), es.AttemptID()); err != nil {
			es.log.WithError(err).Warn("failed to unbind attempt from session")
		}
	}
	r.updateGauge()
}

func (r *Registry) updateGauge() {
	r.metrics.SetActiveAttempts(r.ActiveCount())
}
