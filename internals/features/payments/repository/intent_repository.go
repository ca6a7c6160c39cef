package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"edumarket_bff/internals/features/payments/model"
)

var ErrIntentNotFound = errors.New("payment intent not found")

type IntentRepository interface {
	Create(ctx context.Context, m *model.PaymentIntentModel) error
	FindByReference(ctx context.Context, reference string) (*model.PaymentIntentModel, error)
	MarkVerified(ctx context.Context, reference string, receipt datatypes.JSON, at time.Time) error
	// MarkClosed records a failed or cancelled intent. Verified intents are left alone.
	MarkClosed(ctx context.Context, reference string, status model.IntentStatus, reason string) error
	MarkAcknowledged(ctx context.Context, reference string, at time.Time) error
}

/* ====================== GORM ====================== */

type GormIntentRepository struct {
	db *gorm.DB
}

func NewGormIntentRepository(db *gorm.DB) *GormIntentRepository {
	return &GormIntentRepository{db: db}
}

func (r *GormIntentRepository) Create(ctx context.Context, m *model.PaymentIntentModel) error {
	if m.PaymentIntentID == uuid.Nil {
		m.PaymentIntentID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *GormIntentRepository) FindByReference(ctx context.Context, reference string) (*model.PaymentIntentModel, error) {
	var m model.PaymentIntentModel
	if err := r.db.WithContext(ctx).
		Where("payment_intent_reference = ?", reference).
		First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *GormIntentRepository) MarkVerified(ctx context.Context, reference string, receipt datatypes.JSON, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.PaymentIntentModel{}).
		Where("payment_intent_reference = ?", reference).
		Updates(map[string]any{
			"payment_intent_status":      model.IntentVerified,
			"payment_intent_receipt":     receipt,
			"payment_intent_verified_at": at,
		}).Error
}

func (r *GormIntentRepository) MarkClosed(ctx context.Context, reference string, status model.IntentStatus, reason string) error {
	return r.db.WithContext(ctx).
		Model(&model.PaymentIntentModel{}).
		Where("payment_intent_reference = ? AND payment_intent_status <> ?", reference, model.IntentVerified).
		Updates(map[string]any{
			"payment_intent_status":  status,
			"payment_intent_failure": reason,
		}).Error
}

func (r *GormIntentRepository) MarkAcknowledged(ctx context.Context, reference string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.PaymentIntentModel{}).
		Where("payment_intent_reference = ? AND payment_intent_status = ?", reference, model.IntentVerified).
		Update("payment_intent_acknowledged_at", at).Error
}

/* ====================== MEMORY ====================== */

type MemoryIntentRepository struct {
	mu   sync.Mutex
	rows map[string]model.PaymentIntentModel
}

func NewMemoryIntentRepository() *MemoryIntentRepository {
	return &MemoryIntentRepository{rows: map[string]model.PaymentIntentModel{}}
}

func (r *MemoryIntentRepository) Create(_ context.Context, m *model.PaymentIntentModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[m.PaymentIntentReference]; ok {
		return gorm.ErrDuplicatedKey
	}
	if m.PaymentIntentID == uuid.Nil {
		m.PaymentIntentID = uuid.New()
	}
	if m.PaymentIntentStatus == "" {
		m.PaymentIntentStatus = model.IntentInitiated
	}
	now := time.Now()
	m.PaymentIntentCreatedAt, m.PaymentIntentUpdatedAt = now, now
	r.rows[m.PaymentIntentReference] = *m
	return nil
}

func (r *MemoryIntentRepository) FindByReference(_ context.Context, reference string) (*model.PaymentIntentModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[reference]
	if !ok {
		return nil, ErrIntentNotFound
	}
	return &m, nil
}

func (r *MemoryIntentRepository) MarkVerified(_ context.Context, reference string, receipt datatypes.JSON, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[reference]
	if !ok {
		return nil
	}
	m.PaymentIntentStatus = model.IntentVerified
	m.PaymentIntentReceipt = receipt
	m.PaymentIntentVerifiedAt = &at
	m.PaymentIntentUpdatedAt = time.Now()
	r.rows[reference] = m
	return nil
}

func (r *MemoryIntentRepository) MarkClosed(_ context.Context, reference string, status model.IntentStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[reference]
	if !ok || m.PaymentIntentStatus == model.IntentVerified {
		return nil
	}
	m.PaymentIntentStatus = status
	m.PaymentIntentFailure = &reason
	m.PaymentIntentUpdatedAt = time.Now()
	r.rows[reference] = m
	return nil
}

func (r *MemoryIntentRepository) MarkAcknowledged(_ context.Context, reference string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[reference]
	if !ok || m.PaymentIntentStatus != model.IntentVerified {
		return nil
	}
	m.PaymentIntentAcknowledgedAt = &at
	m.PaymentIntentUpdatedAt = time.Now()
	r.rows[reference] = m
	return nil
}
