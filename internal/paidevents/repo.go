package paidevents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// Repository persists paid events and their processing cursors.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// InsertIfAbsent inserts the event unless (order_id, payment_key) already
// exists. It reports whether a new row was written.
func (r *Repository) InsertIfAbsent(ctx context.Context, event *models.PaidEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "payment_key"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) FindByOrderAndPaymentKey(ctx context.Context, orderID uuid.UUID, paymentKey string) (*models.PaidEvent, error) {
	var event models.PaidEvent
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND payment_key = ?", orderID, paymentKey).
		First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaidEvent, error) {
	var event models.PaidEvent
	if err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// HasEvidence reports whether any payment was recorded for the order.
func (r *Repository) HasEvidence(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.PaidEvent{}).
		Where("order_id = ?", orderID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) EnsureProcessing(ctx context.Context, paidEventID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "paid_event_id"}},
			DoNothing: true,
		}).
		Create(&models.PaidEventProcessing{
			PaidEventID: paidEventID,
			Status:      enums.ProcessingStatusPending,
		}).Error
}

func (r *Repository) FindProcessing(ctx context.Context, paidEventID uuid.UUID) (*models.PaidEventProcessing, error) {
	var record models.PaidEventProcessing
	if err := r.db.WithContext(ctx).
		First(&record, "paid_event_id = ?", paidEventID).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateProcessing writes the new status. Success stamps processed_at and
// clears the last error; processing bumps the attempt counter.
func (r *Repository) UpdateProcessing(ctx context.Context, paidEventID uuid.UUID, status enums.ProcessingStatus, lastError *string, at time.Time) (int64, error) {
	updates := map[string]any{
		"status":     status,
		"last_error": lastError,
		"updated_at": at,
	}
	switch status {
	case enums.ProcessingStatusProcessing:
		updates["attempt_count"] = gorm.Expr("attempt_count + 1")
	case enums.ProcessingStatusSuccess:
		updates["processed_at"] = at
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaidEventProcessing{}).
		Where("paid_event_id = ?", paidEventID).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// ListRecoverable returns paid events whose processing never reached success,
// below maxAttempts, and untouched since staleBefore. A processing record that
// old belongs to a run that died before it could mark the outcome.
func (r *Repository) ListRecoverable(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]models.PaidEvent, error) {
	var events []models.PaidEvent
	err := r.db.WithContext(ctx).
		Model(&models.PaidEvent{}).
		Joins("JOIN paid_event_processings p ON p.paid_event_id = paid_events.id").
		Where("p.status IN ?", []enums.ProcessingStatus{
			enums.ProcessingStatusPending,
			enums.ProcessingStatusProcessing,
			enums.ProcessingStatusFailed,
		}).
		Where("p.attempt_count < ?", maxAttempts).
		Where("p.updated_at < ?", staleBefore).
		Order("paid_events.created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
