package warranties

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	"github.com/prepmood/prepmood-backend/pkg/pagination"
)

// Repository persists warranties and their audit events. Every status or
// owner update is conditional on the expected current row state.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, warranty *models.Warranty) error
	LockBySerial(ctx context.Context, serialTokenID uuid.UUID) (*models.Warranty, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Warranty, error)
	FindByPublicID(ctx context.Context, publicID string) (*models.Warranty, error)
	LockByPublicID(ctx context.Context, publicID string) (*models.Warranty, error)
	LockUnassignedForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Warranty, error)
	Reissue(ctx context.Context, id uuid.UUID, to enums.WarrantyStatus, owner *uuid.UUID, sourceUnitID uuid.UUID, at time.Time) (int64, error)
	SetStatus(ctx context.Context, id uuid.UUID, from, to enums.WarrantyStatus, extra map[string]any) (int64, error)
	Activate(ctx context.Context, id, owner uuid.UUID, at time.Time) (int64, error)
	AssignOwner(ctx context.Context, id, owner uuid.UUID, at time.Time) (int64, error)
	TransferOwner(ctx context.Context, id, from, to uuid.UUID, at time.Time) (int64, error)
	CreateEvent(ctx context.Context, event *models.WarrantyEvent) error
	ListEvents(ctx context.Context, warrantyID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.WarrantyEvent, error)
	FindPublicView(ctx context.Context, publicID string) (*PublicView, error)
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

func (r *repository) Create(ctx context.Context, warranty *models.Warranty) error {
	return r.db.WithContext(ctx).Create(warranty).Error
}

func (r *repository) LockBySerial(ctx context.Context, serialTokenID uuid.UUID) (*models.Warranty, error) {
	var warranty models.Warranty
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("serial_token_id = ?", serialTokenID).
		First(&warranty).Error; err != nil {
		return nil, err
	}
	return &warranty, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Warranty, error) {
	var warranty models.Warranty
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&warranty).Error; err != nil {
		return nil, err
	}
	return &warranty, nil
}

func (r *repository) FindByPublicID(ctx context.Context, publicID string) (*models.Warranty, error) {
	var warranty models.Warranty
	if err := r.db.WithContext(ctx).Where("public_id = ?", publicID).First(&warranty).Error; err != nil {
		return nil, err
	}
	return &warranty, nil
}

func (r *repository) LockByPublicID(ctx context.Context, publicID string) (*models.Warranty, error) {
	var warranty models.Warranty
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("public_id = ?", publicID).
		First(&warranty).Error; err != nil {
		return nil, err
	}
	return &warranty, nil
}

// LockUnassignedForOrder returns the issued_unassigned warranties whose
// source unit belongs to orderID.
func (r *repository) LockUnassignedForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Warranty, error) {
	var warranties []models.Warranty
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("status = ?", enums.WarrantyStatusIssuedUnassigned).
		Where("source_order_item_unit_id IN (?)",
			r.db.Model(&models.OrderItemUnit{}).Select("id").Where("order_id = ?", orderID)).
		Order("created_at ASC").
		Find(&warranties).Error
	return warranties, err
}

// Reissue resurrects a revoked warranty for a new buyer. revoked_at stays as
// resale history; activation and suspension stamps start over.
func (r *repository) Reissue(ctx context.Context, id uuid.UUID, to enums.WarrantyStatus, owner *uuid.UUID, sourceUnitID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Warranty{}).
		Where("id = ? AND status = ?", id, enums.WarrantyStatusRevoked).
		Updates(map[string]any{
			"status":                    to,
			"owner_user_id":             owner,
			"source_order_item_unit_id": sourceUnitID,
			"resale_count":              gorm.Expr("resale_count + 1"),
			"activated_at":              nil,
			"suspended_at":              nil,
			"updated_at":                at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) SetStatus(ctx context.Context, id uuid.UUID, from, to enums.WarrantyStatus, extra map[string]any) (int64, error) {
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Warranty{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) Activate(ctx context.Context, id, owner uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Warranty{}).
		Where("id = ? AND status = ? AND owner_user_id = ?", id, enums.WarrantyStatusIssued, owner).
		Updates(map[string]any{
			"status":       enums.WarrantyStatusActive,
			"activated_at": at,
			"updated_at":   at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) AssignOwner(ctx context.Context, id, owner uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Warranty{}).
		Where("id = ? AND status = ? AND owner_user_id IS NULL", id, enums.WarrantyStatusIssuedUnassigned).
		Updates(map[string]any{
			"status":        enums.WarrantyStatusIssued,
			"owner_user_id": owner,
			"updated_at":    at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) TransferOwner(ctx context.Context, id, from, to uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Warranty{}).
		Where("id = ? AND status = ? AND owner_user_id = ?", id, enums.WarrantyStatusActive, from).
		Updates(map[string]any{
			"owner_user_id": to,
			"updated_at":    at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CreateEvent(ctx context.Context, event *models.WarrantyEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListEvents(ctx context.Context, warrantyID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.WarrantyEvent, error) {
	query := r.db.WithContext(ctx).
		Where("warranty_id = ?", warrantyID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var events []models.WarrantyEvent
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *repository) FindPublicView(ctx context.Context, publicID string) (*PublicView, error) {
	var view PublicView
	res := r.db.WithContext(ctx).
		Table("warranties AS w").
		Select(`w.public_id AS public_id,
			w.status AS status,
			oi.product_id AS product_id,
			oi.product_name AS product_name,
			oi.size AS size,
			oi.color AS color,
			w.created_at AS issued_at,
			w.activated_at AS activated_at,
			w.owner_user_id IS NOT NULL AS assigned`).
		Joins("JOIN order_item_units oiu ON oiu.id = w.source_order_item_unit_id").
		Joins("JOIN order_items oi ON oi.id = oiu.order_item_id").
		Where("w.public_id = ?", publicID).
		Limit(1).
		Scan(&view)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &view, nil
}
