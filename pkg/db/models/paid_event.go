package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// PaidEvent is immutable evidence that a payment was captured. Rows are only inserted.
type PaidEvent struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID             `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_paid_events_order_payment,priority:1"`
	PaymentKey  string                `gorm:"column:payment_key;type:text;not null;uniqueIndex:ux_paid_events_order_payment,priority:2"`
	Amount      decimal.Decimal       `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency    enums.Currency        `gorm:"column:currency;type:text;not null"`
	EventSource enums.PaidEventSource `gorm:"column:event_source;type:text;not null"`
	RawPayload  datatypes.JSON        `gorm:"column:raw_payload"`
	ConfirmedAt time.Time             `gorm:"column:confirmed_at;not null"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (p *PaidEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// PaidEventProcessing is the mutable retry cursor of a paid event.
type PaidEventProcessing struct {
	PaidEventID  uuid.UUID              `gorm:"column:paid_event_id;type:uuid;primaryKey"`
	Status       enums.ProcessingStatus `gorm:"column:status;type:text;not null;default:'pending';index"`
	LastError    *string                `gorm:"column:last_error;type:text"`
	AttemptCount int                    `gorm:"column:attempt_count;not null;default:0"`
	ProcessedAt  *time.Time             `gorm:"column:processed_at"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
