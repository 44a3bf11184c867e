package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// SerialToken is the serialized identity printed on a physical unit. Token is
// the scannable value handed to the label renderer.
type SerialToken struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Token     string    `gorm:"column:token;type:text;not null;uniqueIndex"`
	ProductID string    `gorm:"column:product_id;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (s *SerialToken) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// StockUnit is one physical inventory unit.
type StockUnit struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	ProductID         string            `gorm:"column:product_id;type:text;not null;index:idx_stock_units_lookup,priority:1"`
	Size              *string           `gorm:"column:size;type:text"`
	Color             *string           `gorm:"column:color;type:text"`
	SerialTokenID     uuid.UUID         `gorm:"column:serial_token_id;type:uuid;not null;uniqueIndex"`
	Status            enums.StockStatus `gorm:"column:status;type:text;not null;default:'in_stock';index:idx_stock_units_lookup,priority:2"`
	ReservedByOrderID *uuid.UUID        `gorm:"column:reserved_by_order_id;type:uuid;index"`
	ReservedAt        *time.Time        `gorm:"column:reserved_at"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *StockUnit) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// OrderStockIssue records a shortage detected while reserving stock for a paid order.
type OrderStockIssue struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	PaidEventID uuid.UUID              `gorm:"column:paid_event_id;type:uuid;not null;index"`
	OrderID     uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   string                 `gorm:"column:product_id;type:text;not null"`
	Size        *string                `gorm:"column:size;type:text"`
	Color       *string                `gorm:"column:color;type:text"`
	Requested   int                    `gorm:"column:requested;not null"`
	Available   int                    `gorm:"column:available;not null"`
	Status      enums.StockIssueStatus `gorm:"column:status;type:text;not null;default:'open'"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (s *OrderStockIssue) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
