package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// UnitView is one physical unit as shown to the buyer. Internal stock and
// serial identifiers are never part of it.
type UnitView struct {
	UnitID           uuid.UUID                 `json:"unit_id"`
	OrderItemID      uuid.UUID                 `json:"order_item_id"`
	UnitSeq          int                       `json:"unit_seq"`
	ProductID        string                    `json:"product_id"`
	ProductName      string                    `json:"product_name"`
	Size             *string                   `json:"size,omitempty"`
	Color            *string                   `json:"color,omitempty"`
	Status           enums.OrderItemUnitStatus `json:"status"`
	ShippedAt        *time.Time                `json:"shipped_at,omitempty"`
	DeliveredAt      *time.Time                `json:"delivered_at,omitempty"`
	WarrantyPublicID *string                   `json:"warranty_public_id,omitempty"`
	WarrantyStatus   *enums.WarrantyStatus     `json:"warranty_status,omitempty"`
}

// StatusView is the order lookup response for owners and guest token holders.
type StatusView struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	Currency    enums.Currency    `json:"currency"`
	PaidAt      *time.Time        `json:"paid_at,omitempty"`
	Guest       bool              `json:"guest"`
	Units       []UnitView        `json:"units"`
}
