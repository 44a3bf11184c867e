package invoices

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/types"
)

// Snapshot is the immutable content of an invoice or credit note. The stored
// hash is computed over its JSON encoding.
type Snapshot struct {
	DocumentType enums.InvoiceType `json:"document_type"`
	Number       string            `json:"number"`
	OrderID      uuid.UUID         `json:"order_id"`
	OrderNumber  string            `json:"order_number"`
	IssuedAt     time.Time         `json:"issued_at"`
	PaidAt       *time.Time        `json:"paid_at,omitempty"`
	Currency     enums.Currency    `json:"currency"`
	Issuer       Issuer            `json:"issuer"`
	Billing      Party             `json:"billing"`
	Shipping     Party             `json:"shipping"`
	Items        []LineItem        `json:"items"`
	Amounts      Amounts           `json:"amounts"`

	RelatedInvoiceID     *uuid.UUID `json:"related_invoice_id,omitempty"`
	RelatedInvoiceNumber string     `json:"related_invoice_number,omitempty"`
	RefundEventID        string     `json:"refund_event_id,omitempty"`
	Reason               string     `json:"reason,omitempty"`
	RefundedAt           *time.Time `json:"refunded_at,omitempty"`
	RefundedBy           *uuid.UUID `json:"refunded_by,omitempty"`
	RefundedUnitID       *uuid.UUID `json:"refunded_unit_id,omitempty"`
}

type Issuer struct {
	Name    string `json:"name"`
	TaxID   string `json:"tax_id,omitempty"`
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
}

type Party struct {
	Name    string  `json:"name"`
	Email   string  `json:"email,omitempty"`
	Phone   string  `json:"phone,omitempty"`
	Address Address `json:"address"`
}

type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

type LineItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Size        *string         `json:"size,omitempty"`
	Color       *string         `json:"color,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type Amounts struct {
	Total decimal.Decimal `json:"total"`
	Tax   decimal.Decimal `json:"tax"`
	Net   decimal.Decimal `json:"net"`
}

// encode returns the stored payload and its SHA-256 hex digest.
func encode(snapshot Snapshot) ([]byte, string, error) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(raw)
	return raw, hex.EncodeToString(sum[:]), nil
}

// VerifyHash reports whether payload still matches the digest stored with it.
func VerifyHash(payload []byte, digest string) bool {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]) == strings.ToLower(digest)
}

// splitTax treats total as tax inclusive.
func splitTax(total, ratePercent decimal.Decimal, currency enums.Currency) Amounts {
	places := int32(2)
	if currency == enums.CurrencyKRW || currency == enums.CurrencyJPY {
		places = 0
	}
	tax := decimal.Zero
	if ratePercent.IsPositive() {
		tax = total.Mul(ratePercent).Div(ratePercent.Add(decimal.NewFromInt(100))).Round(places)
	}
	return Amounts{Total: total, Tax: tax, Net: total.Sub(tax)}
}

func partyFrom(contact *types.Contact) Party {
	if contact == nil {
		return Party{}
	}
	return Party{
		Name:  strings.TrimSpace(contact.Name),
		Email: strings.TrimSpace(contact.Email),
		Phone: strings.TrimSpace(contact.Phone),
		Address: Address{
			Line1:      contact.Line1,
			Line2:      contact.Line2,
			City:       contact.City,
			PostalCode: contact.PostalCode,
			Country:    contact.Country,
		},
	}
}

// SnapshotOf decodes the stored payload of an invoice or credit note.
func SnapshotOf(invoice *models.Invoice) (Snapshot, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(invoice.Payload, &snapshot); err != nil {
		return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode invoice snapshot")
	}
	return snapshot, nil
}
