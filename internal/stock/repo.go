package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// Repository is the storage surface of the reservation engine.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CountAvailable(ctx context.Context, variant Variant) (int64, error)
	LockAvailable(ctx context.Context, variant Variant, limit int) ([]models.StockUnit, error)
	MarkReserved(ctx context.Context, unitID, orderID uuid.UUID, at time.Time) (int64, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.StockUnit, error)
	ReturnToStock(ctx context.Context, unitID, orderID uuid.UUID) (int64, error)
	SetStatus(ctx context.Context, unitID uuid.UUID, from, to enums.StockStatus) (int64, error)
	ReleaseOrphanedForOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	ListOrphanedOrders(ctx context.Context, reservedBefore time.Time, limit int) ([]uuid.UUID, error)
	BoundUnitStatuses(ctx context.Context, stockUnitID uuid.UUID) ([]enums.OrderItemUnitStatus, error)
	CreateIssues(ctx context.Context, issues []models.OrderStockIssue) error
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

// variantScope matches units of the product. A requested size or color also
// accepts units that carry none; a line without size or color places no
// condition on that attribute.
func variantScope(variant Variant) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("product_id = ?", variant.ProductID)
		if variant.Size != "" {
			db = db.Where("(size = ? OR size IS NULL)", variant.Size)
		}
		if variant.Color != "" {
			db = db.Where("(color = ? OR color IS NULL)", variant.Color)
		}
		return db
	}
}

func (r *repository) CountAvailable(ctx context.Context, variant Variant) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StockUnit{}).
		Scopes(variantScope(variant)).
		Where("status = ?", enums.StockStatusInStock).
		Count(&count).Error
	return count, err
}

// LockAvailable locks up to limit in-stock units, skipping rows another
// transaction already holds.
func (r *repository) LockAvailable(ctx context.Context, variant Variant, limit int) ([]models.StockUnit, error) {
	var units []models.StockUnit
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Scopes(variantScope(variant)).
		Where("status = ?", enums.StockStatusInStock).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&units).Error
	return units, err
}

func (r *repository) MarkReserved(ctx context.Context, unitID, orderID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StockUnit{}).
		Where("id = ? AND status = ?", unitID, enums.StockStatusInStock).
		Updates(map[string]any{
			"status":               enums.StockStatusReserved,
			"reserved_by_order_id": orderID,
			"reserved_at":          at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.StockUnit, error) {
	var unit models.StockUnit
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&unit, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

// ReturnToStock releases a reservation held by orderID.
func (r *repository) ReturnToStock(ctx context.Context, unitID, orderID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StockUnit{}).
		Where("id = ? AND status = ? AND reserved_by_order_id = ?", unitID, enums.StockStatusReserved, orderID).
		Updates(map[string]any{
			"status":               enums.StockStatusInStock,
			"reserved_by_order_id": nil,
			"reserved_at":          nil,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) SetStatus(ctx context.Context, unitID uuid.UUID, from, to enums.StockStatus) (int64, error) {
	updates := map[string]any{"status": to}
	if to != enums.StockStatusReserved {
		updates["reserved_by_order_id"] = nil
		updates["reserved_at"] = nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.StockUnit{}).
		Where("id = ? AND status = ?", unitID, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// orphanFilter selects reserved units with no live order item unit bound to them.
const orphanFilter = `NOT EXISTS (
	SELECT 1 FROM order_item_units oiu
	WHERE oiu.stock_unit_id = stock_units.id AND oiu.unit_status <> ?
)`

func (r *repository) ReleaseOrphanedForOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StockUnit{}).
		Where("status = ? AND reserved_by_order_id = ?", enums.StockStatusReserved, orderID).
		Where(orphanFilter, enums.UnitStatusRefunded).
		Updates(map[string]any{
			"status":               enums.StockStatusInStock,
			"reserved_by_order_id": nil,
			"reserved_at":          nil,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListOrphanedOrders(ctx context.Context, reservedBefore time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.StockUnit{}).
		Distinct("reserved_by_order_id").
		Where("status = ? AND reserved_by_order_id IS NOT NULL AND reserved_at < ?", enums.StockStatusReserved, reservedBefore).
		Where(orphanFilter, enums.UnitStatusRefunded).
		Limit(limit).
		Pluck("reserved_by_order_id", &ids).Error
	return ids, err
}

func (r *repository) BoundUnitStatuses(ctx context.Context, stockUnitID uuid.UUID) ([]enums.OrderItemUnitStatus, error) {
	var statuses []enums.OrderItemUnitStatus
	err := r.db.WithContext(ctx).
		Model(&models.OrderItemUnit{}).
		Where("stock_unit_id = ?", stockUnitID).
		Pluck("unit_status", &statuses).Error
	return statuses, err
}

func (r *repository) CreateIssues(ctx context.Context, issues []models.OrderStockIssue) error {
	if len(issues) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&issues).Error
}
