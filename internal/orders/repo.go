package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) (int64, error)
	MarkPaid(ctx context.Context, id uuid.UUID, at time.Time) error
	AssignOwner(ctx context.Context, id, userID uuid.UUID) (int64, error)
	ListUnitViews(ctx context.Context, orderID uuid.UUID) ([]UnitView, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LockByID loads the order row FOR UPDATE together with its items.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", id).
		Order("created_at ASC, id ASC").
		Find(&order.Items).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// MarkPaid stamps paid_at once; later payments keep the first timestamp.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND paid_at IS NULL", id).
		Updates(map[string]any{"paid_at": at, "updated_at": at}).Error
}

func (r *repository) AssignOwner(ctx context.Context, id, userID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND user_id IS NULL", id).
		Updates(map[string]any{"user_id": userID, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (r *repository) ListUnitViews(ctx context.Context, orderID uuid.UUID) ([]UnitView, error) {
	var rows []UnitView
	err := r.db.WithContext(ctx).
		Table("order_item_units AS oiu").
		Select(`oiu.id AS unit_id,
			oiu.order_item_id AS order_item_id,
			oiu.unit_seq AS unit_seq,
			oi.product_id AS product_id,
			oi.product_name AS product_name,
			oi.size AS size,
			oi.color AS color,
			oiu.unit_status AS status,
			oiu.shipped_at AS shipped_at,
			oiu.delivered_at AS delivered_at,
			w.public_id AS warranty_public_id,
			w.status AS warranty_status`).
		Joins("JOIN order_items oi ON oi.id = oiu.order_item_id").
		Joins("LEFT JOIN warranties w ON w.source_order_item_unit_id = oiu.id").
		Where("oiu.order_id = ?", orderID).
		Order("oi.created_at ASC, oiu.order_item_id ASC, oiu.unit_seq ASC").
		Scan(&rows).Error
	return rows, err
}
