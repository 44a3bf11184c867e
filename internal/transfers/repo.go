package transfers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, transfer *models.WarrantyTransfer) error
	HasLive(ctx context.Context, warrantyID uuid.UUID, now time.Time) (bool, error)
	LiveCodeExists(ctx context.Context, code string, now time.Time) (bool, error)
	LockLive(ctx context.Context, transferID string, now time.Time) (*models.WarrantyTransfer, error)
	Complete(ctx context.Context, id, toUserID uuid.UUID, now time.Time) (int64, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, transfer *models.WarrantyTransfer) error {
	return r.db.WithContext(ctx).Create(transfer).Error
}

func (r *repository) HasLive(ctx context.Context, warrantyID uuid.UUID, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WarrantyTransfer{}).
		Where("warranty_id = ? AND status = ? AND expires_at > ?", warrantyID, enums.TransferStatusRequested, now).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) LiveCodeExists(ctx context.Context, code string, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WarrantyTransfer{}).
		Where("transfer_code = ? AND status = ? AND expires_at > ?", code, enums.TransferStatusRequested, now).
		Count(&count).Error
	return count > 0, err
}

// LockLive returns gorm.ErrRecordNotFound for completed, expired or unknown transfers.
func (r *repository) LockLive(ctx context.Context, transferID string, now time.Time) (*models.WarrantyTransfer, error) {
	var transfer models.WarrantyTransfer
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("transfer_id = ? AND status = ? AND expires_at > ?", transferID, enums.TransferStatusRequested, now).
		First(&transfer).Error
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (r *repository) Complete(ctx context.Context, id, toUserID uuid.UUID, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.WarrantyTransfer{}).
		Where("id = ? AND status = ?", id, enums.TransferStatusRequested).
		Updates(map[string]any{
			"status":       enums.TransferStatusCompleted,
			"to_user_id":   toUserID,
			"completed_at": now,
			"updated_at":   now,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.WarrantyTransfer{}).
		Where("status = ? AND expires_at <= ?", enums.TransferStatusRequested, now).
		Updates(map[string]any{"status": enums.TransferStatusExpired, "updated_at": now})
	return res.RowsAffected, res.Error
}
