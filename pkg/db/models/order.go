package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/pkg/enums"
	"github.com/prepmood/prepmood-backend/pkg/types"
)

// Order is the purchase aggregate. Status is a projection maintained by the
// order status aggregator and must not be written anywhere else.
type Order struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber string            `gorm:"column:order_number;type:text;not null;uniqueIndex"`
	UserID      *uuid.UUID        `gorm:"column:user_id;type:uuid;index"`
	GuestEmail  *string           `gorm:"column:guest_email;type:text"`
	Status      enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	TotalAmount decimal.Decimal   `gorm:"column:total_amount;type:numeric(14,2);not null"`
	Currency    enums.Currency    `gorm:"column:currency;type:text;not null;default:'KRW'"`
	Billing     *types.Contact    `gorm:"column:billing;type:jsonb;serializer:json"`
	Shipping    *types.Contact    `gorm:"column:shipping;type:jsonb;serializer:json"`
	PaidAt      *time.Time        `gorm:"column:paid_at"`
	Items       []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// IsGuest reports whether the order has not been bound to an account yet.
func (o *Order) IsGuest() bool {
	return o.UserID == nil || *o.UserID == uuid.Nil
}

// OrderItem is one order line: a product variant and a quantity.
type OrderItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   string          `gorm:"column:product_id;type:text;not null"`
	ProductName string          `gorm:"column:product_name;type:text;not null"`
	Size        *string         `gorm:"column:size;type:text"`
	Color       *string         `gorm:"column:color;type:text"`
	Quantity    int             `gorm:"column:quantity;not null"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null"`
	Subtotal    decimal.Decimal `gorm:"column:subtotal;type:numeric(14,2);not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
