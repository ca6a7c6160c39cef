package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"edumarket_bff/internals/features/cbt/model"
)

var ErrAttemptNotFound = errors.New("attempt record not found")

// AttemptUpdate is the outcome written when an attempt changes status.
type AttemptUpdate struct {
	Status    model.AttemptStatus
	Trigger   string
	LastError string
	At        time.Time
}

type AttemptRepository interface {
	Create(ctx context.Context, m *model.ExamAttemptModel) error
	FindByAttemptID(ctx context.Context, attemptID int64) (*model.ExamAttemptModel, error)
	UpdateStatus(ctx context.Context, attemptID int64, u AttemptUpdate) error
	// ClaimForSubmit moves an in-progress attempt to submitting. Only one caller wins.
	ClaimForSubmit(ctx context.Context, attemptID int64) (bool, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]model.ExamAttemptModel, error)
}

/* ====================== GORM ====================== */

type GormAttemptRepository struct {
	db *gorm.DB
}

func NewGormAttemptRepository(db *gorm.DB) *GormAttemptRepository {
	return &GormAttemptRepository{db: db}
}

func (r *GormAttemptRepository) Create(ctx context.Context, m *model.ExamAttemptModel) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *GormAttemptRepository) FindByAttemptID(ctx context.Context, attemptID int64) (*model.ExamAttemptModel, error) {
	var m model.ExamAttemptModel
	if err := r.db.WithContext(ctx).
		Where("exam_attempt_id = ?", attemptID).
		First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *GormAttemptRepository) UpdateStatus(ctx context.Context, attemptID int64, u AttemptUpdate) error {
	fields := map[string]any{"exam_attempt_status": u.Status}
	if u.Trigger != "" {
		fields["exam_attempt_submit_trigger"] = u.Trigger
	}
	if u.LastError != "" {
		fields["exam_attempt_last_error"] = u.LastError
	}
	if u.Status == model.AttemptCompleted {
		fields["exam_attempt_submitted_at"] = u.At
	}
	return r.db.WithContext(ctx).
		Model(&model.ExamAttemptModel{}).
		Where("exam_attempt_id = ?", attemptID).
		Updates(fields).Error
}

func (r *GormAttemptRepository) ClaimForSubmit(ctx context.Context, attemptID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.ExamAttemptModel{}).
		Where("exam_attempt_id = ? AND exam_attempt_status = ?", attemptID, model.AttemptInProgress).
		Update("exam_attempt_status", model.AttemptSubmitting)
	return res.RowsAffected == 1, res.Error
}

func (r *GormAttemptRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]model.ExamAttemptModel, error) {
	var rows []model.ExamAttemptModel
	err := r.db.WithContext(ctx).
		Where("exam_attempt_status = ? AND exam_attempt_deadline_at < ?", model.AttemptInProgress, now).
		Order("exam_attempt_deadline_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

/* ====================== MEMORY ====================== */

type MemoryAttemptRepository struct {
	mu   sync.Mutex
	rows map[int64]model.ExamAttemptModel
}

func NewMemoryAttemptRepository() *MemoryAttemptRepository {
	return &MemoryAttemptRepository{rows: map[int64]model.ExamAttemptModel{}}
}

func (r *MemoryAttemptRepository) Create(_ context.Context, m *model.ExamAttemptModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[m.ExamAttemptID]; ok {
		return gorm.ErrDuplicatedKey
	}
	now := time.Now()
	m.ExamAttemptCreatedAt, m.ExamAttemptUpdatedAt = now, now
	r.rows[m.ExamAttemptID] = *m
	return nil
}

func (r *MemoryAttemptRepository) FindByAttemptID(_ context.Context, attemptID int64) (*model.ExamAttemptModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[attemptID]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return &m, nil
}

func (r *MemoryAttemptRepository) UpdateStatus(_ context.Context, attemptID int64, u AttemptUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[attemptID]
	if !ok {
		return nil
	}
	m.ExamAttemptStatus = u.Status
	if u.Trigger != "" {
		t := u.Trigger
		m.ExamAttemptSubmitTrigger = &t
	}
	if u.LastError != "" {
		e := u.LastError
		m.ExamAttemptLastError = &e
	}
	if u.Status == model.AttemptCompleted {
		at := u.At
		m.ExamAttemptSubmittedAt = &at
	}
	m.ExamAttemptUpdatedAt = time.Now()
	r.rows[attemptID] = m
	return nil
}

func (r *MemoryAttemptRepository) ClaimForSubmit(_ context.Context, attemptID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[attemptID]
	if !ok || m.ExamAttemptStatus != model.AttemptInProgress {
		return false, nil
	}
	m.ExamAttemptStatus = model.AttemptSubmitting
	r.rows[attemptID] = m
	return true, nil
}

func (r *MemoryAttemptRepository) ListOverdue(_ context.Context, now time.Time, limit int) ([]model.ExamAttemptModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ExamAttemptModel
	for _, m := range r.rows {
		if m.ExamAttemptStatus == model.AttemptInProgress && m.ExamAttemptDeadlineAt.Before(now) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExamAttemptDeadlineAt.Before(out[j].ExamAttemptDeadlineAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
