package refunds

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// Input refunds the unit behind one warranty. IdempotencyKey becomes the
// credit note's refund event id.
type Input struct {
	WarrantyPublicID string
	AdminID          uuid.UUID
	Reason           string
	IdempotencyKey   string
}

type Result struct {
	RefundEventID    string            `json:"refund_event_id"`
	OrderID          uuid.UUID         `json:"order_id"`
	WarrantyPublicID string            `json:"warranty_public_id"`
	CreditNoteID     uuid.UUID         `json:"credit_note_id"`
	CreditNoteNumber string            `json:"credit_note_number"`
	Amount           decimal.Decimal   `json:"amount"`
	Currency         enums.Currency    `json:"currency"`
	OrderStatus      enums.OrderStatus `json:"order_status,omitempty"`
	RefundedAt       time.Time         `json:"refunded_at"`
	// AlreadyRefunded is set when the key was seen before; nothing changed.
	AlreadyRefunded bool `json:"already_refunded"`
}
