package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// Invoice holds both invoices and credit notes. Rows are immutable once issued.
type Invoice struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	InvoiceNumber    string              `gorm:"column:invoice_number;type:text;not null;uniqueIndex"`
	OrderID          uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Type             enums.InvoiceType   `gorm:"column:type;type:text;not null"`
	Status           enums.InvoiceStatus `gorm:"column:status;type:text;not null;default:'issued'"`
	RelatedInvoiceID *uuid.UUID          `gorm:"column:related_invoice_id;type:uuid"`
	RefundEventID    *string             `gorm:"column:refund_event_id;type:text;uniqueIndex"`
	Currency         enums.Currency      `gorm:"column:currency;type:text;not null"`
	TotalAmount      decimal.Decimal     `gorm:"column:total_amount;type:numeric(14,2);not null"`
	TaxAmount        decimal.Decimal     `gorm:"column:tax_amount;type:numeric(14,2);not null"`
	NetAmount        decimal.Decimal     `gorm:"column:net_amount;type:numeric(14,2);not null"`
	Payload          datatypes.JSON      `gorm:"column:payload_json;not null"`
	PayloadHash      string              `gorm:"column:payload_hash;type:text;not null"`
	IssuedAt         time.Time           `gorm:"column:issued_at;not null"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (i *Invoice) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
