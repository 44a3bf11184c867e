package fulfillment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prepmood/prepmood-backend/internal/claims"
	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// ConfirmedPayment is what the gateway collaborator hands over once the
// provider confirmed the charge.
type ConfirmedPayment struct {
	OrderID     uuid.UUID             `json:"order_id"`
	PaymentKey  string                `json:"payment_key"`
	Amount      decimal.Decimal       `json:"amount"`
	Currency    enums.Currency        `json:"currency"`
	Source      enums.PaidEventSource `json:"source"`
	RawPayload  json.RawMessage       `json:"raw_payload,omitempty"`
	ConfirmedAt time.Time             `json:"confirmed_at"`
}

// Outcome describes the state a processed payment left behind.
type Outcome struct {
	OrderID           uuid.UUID           `json:"order_id"`
	OrderNumber       string              `json:"order_number"`
	PaidEventID       uuid.UUID           `json:"paid_event_id"`
	OrderStatus       enums.OrderStatus   `json:"order_status"`
	UnitIDs           []uuid.UUID         `json:"unit_ids"`
	WarrantyPublicIDs []string            `json:"warranty_public_ids"`
	InvoiceNumber     string              `json:"invoice_number,omitempty"`
	GuestAccess       *claims.IssuedToken `json:"guest_access,omitempty"`
	// ReusedUnits is set when units from an earlier committed attempt were found.
	ReusedUnits      bool `json:"reused_units"`
	AlreadyProcessed bool `json:"already_processed"`
}

// RecoveryReport summarizes one sweep over stale paid events.
type RecoveryReport struct {
	Scanned   int `json:"scanned"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
