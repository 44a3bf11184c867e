package invoices

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// CreditNoteInput describes one refunded unit. RefundEventID is the caller's
// idempotency key.
type CreditNoteInput struct {
	Order         *models.Order
	Related       *models.Invoice
	Item          *models.OrderItem
	UnitID        uuid.UUID
	RefundEventID string
	Reason        string
	RefundedBy    *uuid.UUID
}

// Summary is the list view of a document.
type Summary struct {
	ID            uuid.UUID           `json:"id"`
	InvoiceNumber string              `json:"invoice_number"`
	OrderID       uuid.UUID           `json:"order_id"`
	Type          enums.InvoiceType   `json:"type"`
	Status        enums.InvoiceStatus `json:"status"`
	Currency      enums.Currency      `json:"currency"`
	Total         decimal.Decimal     `json:"total"`
	IssuedAt      time.Time           `json:"issued_at"`
}

type Page struct {
	Invoices   []Summary `json:"invoices"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// Document is a stored document with its decoded snapshot.
type Document struct {
	Summary
	Snapshot    Snapshot `json:"snapshot"`
	PayloadHash string   `json:"payload_hash"`
	Verified    bool     `json:"verified"`
}

func summaryOf(invoice *models.Invoice) Summary {
	return Summary{
		ID:            invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		OrderID:       invoice.OrderID,
		Type:          invoice.Type,
		Status:        invoice.Status,
		Currency:      invoice.Currency,
		Total:         invoice.TotalAmount,
		IssuedAt:      invoice.IssuedAt,
	}
}
