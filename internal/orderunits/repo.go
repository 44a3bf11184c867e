package orderunits

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// Repository persists order item units.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertIfAbsent(ctx context.Context, unit *models.OrderItemUnit) (bool, error)
	FindByItemSeq(ctx context.Context, orderItemID uuid.UUID, seq int) (*models.OrderItemUnit, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.OrderItemUnit, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.OrderItemUnit, error)
	LockActiveBySerial(ctx context.Context, serialTokenID uuid.UUID) (*models.OrderItemUnit, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderItemUnit, error)
	ListByIDs(ctx context.Context, orderID uuid.UUID, ids []uuid.UUID) ([]models.OrderItemUnit, error)
	Statuses(ctx context.Context, orderID uuid.UUID) ([]enums.OrderItemUnitStatus, error)
	MarkShipped(ctx context.Context, orderID, shipmentID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error)
	MarkDelivered(ctx context.Context, orderID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error)
	MarkRefunded(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	CreateShipment(ctx context.Context, shipment *models.Shipment) error
	TrackingNumberTaken(ctx context.Context, trackingNumber string) (bool, error)
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

// InsertIfAbsent reports false when (order_item_id, unit_seq) already exists.
// DO NOTHING keeps a postgres transaction usable after the collision.
func (r *repository) InsertIfAbsent(ctx context.Context, unit *models.OrderItemUnit) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_item_id"}, {Name: "unit_seq"}},
			DoNothing: true,
		}).
		Create(unit)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindByItemSeq(ctx context.Context, orderItemID uuid.UUID, seq int) (*models.OrderItemUnit, error) {
	var unit models.OrderItemUnit
	if err := r.db.WithContext(ctx).
		Where("order_item_id = ? AND unit_seq = ?", orderItemID, seq).
		First(&unit).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.OrderItemUnit, error) {
	var unit models.OrderItemUnit
	if err := r.db.WithContext(ctx).First(&unit, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.OrderItemUnit, error) {
	var unit models.OrderItemUnit
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&unit, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

// LockActiveBySerial finds the unit currently carrying a serial identity, the
// latest one first when a unit was resold.
func (r *repository) LockActiveBySerial(ctx context.Context, serialTokenID uuid.UUID) (*models.OrderItemUnit, error) {
	var unit models.OrderItemUnit
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("serial_token_id = ? AND unit_status <> ?", serialTokenID, enums.UnitStatusRefunded).
		Order("created_at DESC").
		First(&unit).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderItemUnit, error) {
	var units []models.OrderItemUnit
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("order_item_id ASC, unit_seq ASC").
		Find(&units).Error
	return units, err
}

func (r *repository) ListByIDs(ctx context.Context, orderID uuid.UUID, ids []uuid.UUID) ([]models.OrderItemUnit, error) {
	var units []models.OrderItemUnit
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND id IN ?", orderID, ids).
		Find(&units).Error
	return units, err
}

func (r *repository) Statuses(ctx context.Context, orderID uuid.UUID) ([]enums.OrderItemUnitStatus, error) {
	var statuses []enums.OrderItemUnitStatus
	err := r.db.WithContext(ctx).
		Model(&models.OrderItemUnit{}).
		Where("order_id = ?", orderID).
		Pluck("unit_status", &statuses).Error
	return statuses, err
}

func (r *repository) MarkShipped(ctx context.Context, orderID, shipmentID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderItemUnit{}).
		Where("order_id = ? AND id IN ? AND unit_status = ? AND shipment_id IS NULL", orderID, ids, enums.UnitStatusReserved).
		Updates(map[string]any{
			"unit_status": enums.UnitStatusShipped,
			"shipment_id": shipmentID,
			"shipped_at":  at,
			"updated_at":  at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) MarkDelivered(ctx context.Context, orderID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderItemUnit{}).
		Where("order_id = ? AND id IN ? AND unit_status = ?", orderID, ids, enums.UnitStatusShipped).
		Updates(map[string]any{
			"unit_status":  enums.UnitStatusDelivered,
			"delivered_at": at,
			"updated_at":   at,
		})
	return res.RowsAffected, res.Error
}

// MarkRefunded moves any unit that is not refunded yet.
func (r *repository) MarkRefunded(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderItemUnit{}).
		Where("id = ? AND unit_status <> ?", id, enums.UnitStatusRefunded).
		Updates(map[string]any{
			"unit_status": enums.UnitStatusRefunded,
			"refunded_at": at,
			"updated_at":  at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CreateShipment(ctx context.Context, shipment *models.Shipment) error {
	return r.db.WithContext(ctx).Create(shipment).Error
}

func (r *repository) TrackingNumberTaken(ctx context.Context, trackingNumber string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("tracking_number = ?", trackingNumber).
		Count(&count).Error
	return count > 0, err
}
