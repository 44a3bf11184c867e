package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// OrderPaidEvent is emitted once the fulfillment chain for a payment commits.
type OrderPaidEvent struct {
	OrderID       uuid.UUID       `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	PaidEventID   uuid.UUID       `json:"paid_event_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      enums.Currency  `json:"currency"`
	UnitCount     int             `json:"unit_count"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	Guest         bool            `json:"guest"`
}

// WarrantyIssuedEvent carries only the public identity of a warranty.
type WarrantyIssuedEvent struct {
	WarrantyPublicID string               `json:"warranty_public_id"`
	OrderID          uuid.UUID            `json:"order_id"`
	Status           enums.WarrantyStatus `json:"status"`
	Resale           bool                 `json:"resale"`
}

type WarrantyActivatedEvent struct {
	WarrantyPublicID string    `json:"warranty_public_id"`
	OwnerUserID      uuid.UUID `json:"owner_user_id"`
	ActivatedAt      time.Time `json:"activated_at"`
}

type WarrantyTransferredEvent struct {
	WarrantyPublicID string    `json:"warranty_public_id"`
	TransferID       string    `json:"transfer_id"`
	FromUserID       uuid.UUID `json:"from_user_id"`
	ToUserID         uuid.UUID `json:"to_user_id"`
	CompletedAt      time.Time `json:"completed_at"`
}

// WarrantyStatusEvent covers admin suspend and unsuspend.
type WarrantyStatusEvent struct {
	WarrantyPublicID string               `json:"warranty_public_id"`
	From             enums.WarrantyStatus `json:"from"`
	To               enums.WarrantyStatus `json:"to"`
	Reason           string               `json:"reason"`
}

type OrderClaimedEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	UserID           uuid.UUID `json:"user_id"`
	WarrantiesIssued int       `json:"warranties_issued"`
	ClaimedAt        time.Time `json:"claimed_at"`
}

type InvoiceIssuedEvent struct {
	InvoiceID     uuid.UUID         `json:"invoice_id"`
	InvoiceNumber string            `json:"invoice_number"`
	OrderID       uuid.UUID         `json:"order_id"`
	Type          enums.InvoiceType `json:"type"`
	Total         decimal.Decimal   `json:"total"`
	Currency      enums.Currency    `json:"currency"`
}

type RefundProcessedEvent struct {
	OrderID          uuid.UUID       `json:"order_id"`
	WarrantyPublicID string          `json:"warranty_public_id"`
	RefundEventID    string          `json:"refund_event_id"`
	CreditNoteNumber string          `json:"credit_note_number"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         enums.Currency  `json:"currency"`
}

type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}

// StockShortageEvent alerts operators that a paid order could not be reserved.
type StockShortageEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	PaidEventID uuid.UUID `json:"paid_event_id"`
	ProductID   string    `json:"product_id"`
	Size        string    `json:"size,omitempty"`
	Color       string    `json:"color,omitempty"`
	Requested   int       `json:"requested"`
	Available   int       `json:"available"`
}
