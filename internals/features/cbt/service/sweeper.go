package service

import (
	"context"
	"time"

	"edumarket_bff/internals/features/cbt/model"
	"edumarket_bff/internals/features/cbt/repository"
	"edumarket_bff/internals/helpers/logger"
	"edumarket_bff/internals/helpers/metrics"
	"edumarket_bff/internals/upstream"
)

// Sweeper submits attempts whose deadline passed while no countdown was
// running for them, e.g. across a restart. Each attempt is tried once.
type Sweeper struct {
	repo      repository.AttemptRepository
	api       ExamAPI
	registry  *Registry
	tokensFor func(sessionID string, userID int64) TokenSource
	binder    SessionBinder
	metrics   *metrics.Metrics

	Grace time.Duration
	Batch int
	now   func() time.Time
}

func NewSweeper(repo repository.AttemptRepository, api ExamAPI, registry *Registry, tokensFor func(sessionID string, userID int64) TokenSource, binder SessionBinder, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		repo:      repo,
		api:       api,
		registry:  registry,
		tokensFor: tokensFor,
		binder:    binder,
		metrics:   m,
		Grace:     30 * time.Second,
		Batch:     50,
		now:       time.Now,
	}
}

// SweepOnce handles one batch of overdue attempts and returns how many were submitted.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	rows, err := s.repo.ListOverdue(ctx, s.now().Add(-s.Grace), s.Batch)
	if err != nil {
		return 0, err
	}

	submitted := 0
	for _, row := range rows {
		id := row.ExamAttemptID
		if s.registry != nil && s.registry.Live(id) {
			continue
		}
		claimed, err := s.repo.ClaimForSubmit(ctx, id)
		if err != nil {
			logger.WithAttempt(id).WithError(err).Error("[SWEEPER] claim failed")
			continue
		}
		if !claimed {
			continue
		}

		token, err := s.tokensFor(row.ExamAttemptSessionID, row.ExamAttemptUserID)(ctx)
		if err == nil {
			err = s.api.SubmitAttempt(ctx, token, id)
		}

		upd := repository.AttemptUpdate{Trigger: TriggerSweeper, At: s.now()}
		if err != nil {
			upd.Status = model.AttemptExpired
			upd.LastError = upstream.MessageOf(err, err.Error())
			s.metrics.ObserveSubmission(TriggerSweeper, "failed")
			logger.WithAttempt(id).WithError(err).Error("[SWEEPER] overdue attempt could not be submitted")
		} else {
			upd.Status = model.AttemptCompleted
			submitted++
			s.metrics.ObserveSubmission(TriggerSweeper, "ok")
			logger.WithAttempt(id).Info("[SWEEPER] overdue attempt submitted")
		}
		if err := s.repo.UpdateStatus(ctx, id, upd); err != nil {
			logger.WithAttempt(id).WithError(err).Error("[SWEEPER] failed to record status")
		}
		if upd.Status == model.AttemptCompleted && s.binder != nil {
			_ = s.binder.ClearActiveAttempt(ctx, row.ExamAttemptSessionID, id)
		}
	}
	return submitted, nil
}

// Start runs SweepOnce every interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Log.Info("[SWEEPER] stopped")
				return
			case <-t.C:
				if _, err := s.SweepOnce(ctx); err != nil {
					logger.Log.WithError(err).Error("[SWEEPER] failed to list overdue attempts")
				}
			}
		}
	}()
}
