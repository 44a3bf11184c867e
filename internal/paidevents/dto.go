package paidevents

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// RecordInput is the confirmed result handed over by the payment gateway collaborator.
type RecordInput struct {
	OrderID     uuid.UUID
	PaymentKey  string
	Amount      decimal.Decimal
	Currency    enums.Currency
	Source      enums.PaidEventSource
	RawPayload  json.RawMessage
	ConfirmedAt time.Time
}

// Recorded is the stored evidence plus its retry cursor.
type Recorded struct {
	Event      models.PaidEvent
	Processing models.PaidEventProcessing
	Created    bool
}
