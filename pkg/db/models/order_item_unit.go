package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// OrderItemUnit binds one stock unit to one order line.
type OrderItemUnit struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;index"`
	OrderItemID   uuid.UUID                 `gorm:"column:order_item_id;type:uuid;not null;uniqueIndex:ux_order_item_units_item_seq,priority:1"`
	UnitSeq       int                       `gorm:"column:unit_seq;not null;uniqueIndex:ux_order_item_units_item_seq,priority:2"`
	StockUnitID   uuid.UUID                 `gorm:"column:stock_unit_id;type:uuid;not null;index"`
	SerialTokenID uuid.UUID                 `gorm:"column:serial_token_id;type:uuid;not null"`
	Status        enums.OrderItemUnitStatus `gorm:"column:unit_status;type:text;not null;default:'reserved'"`
	ShipmentID    *uuid.UUID                `gorm:"column:shipment_id;type:uuid"`
	ShippedAt     *time.Time                `gorm:"column:shipped_at"`
	DeliveredAt   *time.Time                `gorm:"column:delivered_at"`
	RefundedAt    *time.Time                `gorm:"column:refunded_at"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *OrderItemUnit) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}

// Shipment groups units handed to a carrier under one tracking number.
type Shipment struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	CarrierCode    string     `gorm:"column:carrier_code;type:text;not null"`
	TrackingNumber string     `gorm:"column:tracking_number;type:text;not null;uniqueIndex"`
	CreatedBy      *uuid.UUID `gorm:"column:created_by;type:uuid"`
	ShippedAt      time.Time  `gorm:"column:shipped_at;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (s *Shipment) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
