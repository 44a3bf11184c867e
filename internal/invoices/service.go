package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/pkg/config"
	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/logger"
	"github.com/prepmood/prepmood-backend/pkg/outbox"
	"github.com/prepmood/prepmood-backend/pkg/outbox/payloads"
	"github.com/prepmood/prepmood-backend/pkg/pagination"
	"github.com/prepmood/prepmood-backend/pkg/retry"
)

// Service issues immutable invoices and credit notes and serves them back to
// their owners.
type Service interface {
	IssueForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.Invoice, bool, error)
	IssueCreditNote(ctx context.Context, tx *gorm.DB, input CreditNoteInput) (*models.Invoice, bool, error)
	LockInvoiceForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Invoice, error)
	FindCreditNote(ctx context.Context, tx *gorm.DB, refundEventID string) (*models.Invoice, error)
	ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (*Page, error)
	GetForOwner(ctx context.Context, invoiceID, userID uuid.UUID) (*Document, error)
	RenderPDF(ctx context.Context, invoiceID, userID uuid.UUID) ([]byte, string, error)
}

type Params struct {
	Repo   Repository
	Outbox outbox.Emitter
	Logger *logger.Logger
	Config config.InvoiceConfig
}

type service struct {
	repo         Repository
	outbox       outbox.Emitter
	logg         *logger.Logger
	issuer       Issuer
	taxRate      decimal.Decimal
	numberPolicy retry.Policy
	now          func() time.Time
}

func NewService(params Params) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("invoice repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	rate := decimal.Zero
	if raw := strings.TrimSpace(params.Config.TaxRatePercent); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse invoice tax rate: %w", err)
		}
		if parsed.IsNegative() {
			return nil, fmt.Errorf("invoice tax rate must not be negative")
		}
		rate = parsed
	}
	policy := retry.DefaultPolicy()
	if params.Config.NumberAttempts > 0 {
		policy.Attempts = params.Config.NumberAttempts
	}
	if params.Config.NumberBackoff > 0 {
		policy.Backoff = params.Config.NumberBackoff
	}
	return &service{
		repo:   params.Repo,
		outbox: params.Outbox,
		logg:   params.Logger,
		issuer: Issuer{
			Name:    params.Config.IssuerName,
			TaxID:   params.Config.IssuerTaxID,
			Address: params.Config.IssuerAddress,
			Email:   params.Config.IssuerEmail,
		},
		taxRate:      rate,
		numberPolicy: policy,
		now:          time.Now,
	}, nil
}

// IssueForOrder returns the existing invoice of the order when there is one.
// The caller holds the order row lock. The bool reports whether a new row was
// written.
func (s *service) IssueForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.Invoice, bool, error) {
	if tx == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if order == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	repo := s.repo.WithTx(tx)

	existing, err := repo.FindInvoiceForOrder(ctx, order.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order invoice")
	}

	billing, shipping, err := s.parties(ctx, repo, order)
	if err != nil {
		return nil, false, err
	}

	now := s.now().UTC()
	number, err := s.nextNumber(ctx, repo, now, InvoiceNumber)
	if err != nil {
		return nil, false, numberError(err)
	}

	currency := order.Currency
	snapshot := Snapshot{
		DocumentType: enums.InvoiceTypeInvoice,
		Number:       number,
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		IssuedAt:     now,
		PaidAt:       order.PaidAt,
		Currency:     currency,
		Issuer:       s.issuer,
		Billing:      billing,
		Shipping:     shipping,
		Items:        lineItems(order.Items),
		Amounts:      splitTax(order.TotalAmount, s.taxRate, currency),
	}

	invoice, err := s.store(ctx, repo, snapshot, nil, nil)
	if err != nil {
		return nil, false, err
	}
	if err := s.emitIssued(ctx, tx, invoice); err != nil {
		return nil, false, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id":       order.ID.String(),
			"invoice_number": invoice.InvoiceNumber,
		}), "invoice issued")
	}
	return invoice, true, nil
}

// IssueCreditNote returns the credit note already stored under the refund
// event id when the refund is retried.
func (s *service) IssueCreditNote(ctx context.Context, tx *gorm.DB, input CreditNoteInput) (*models.Invoice, bool, error) {
	if tx == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if input.Order == nil || input.Item == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "order and order item required")
	}
	refundEventID := strings.TrimSpace(input.RefundEventID)
	if refundEventID == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "refund event id required")
	}
	repo := s.repo.WithTx(tx)

	existing, err := repo.FindByRefundEventID(ctx, refundEventID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load credit note")
	}

	now := s.now().UTC()
	number, err := s.nextNumber(ctx, repo, now, CreditNoteNumber)
	if err != nil {
		return nil, false, numberError(err)
	}

	order := input.Order
	item := input.Item
	unitID := input.UnitID
	snapshot := Snapshot{
		DocumentType: enums.InvoiceTypeCreditNote,
		Number:       number,
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		IssuedAt:     now,
		PaidAt:       order.PaidAt,
		Currency:     order.Currency,
		Issuer:       s.issuer,
		Billing:      partyFrom(order.Billing),
		Shipping:     partyFrom(order.Shipping),
		Items: []LineItem{{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Size:        item.Size,
			Color:       item.Color,
			Quantity:    1,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.UnitPrice,
		}},
		Amounts:        splitTax(item.UnitPrice, s.taxRate, order.Currency),
		RefundEventID:  refundEventID,
		Reason:         strings.TrimSpace(input.Reason),
		RefundedAt:     &now,
		RefundedBy:     input.RefundedBy,
		RefundedUnitID: &unitID,
	}
	var relatedID *uuid.UUID
	if input.Related != nil {
		id := input.Related.ID
		relatedID = &id
		snapshot.RelatedInvoiceID = &id
		snapshot.RelatedInvoiceNumber = input.Related.InvoiceNumber
	}

	note, err := s.store(ctx, repo, snapshot, relatedID, &refundEventID)
	if err != nil {
		return nil, false, err
	}
	if err := s.emitIssued(ctx, tx, note); err != nil {
		return nil, false, err
	}
	return note, true, nil
}

func (s *service) LockInvoiceForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.repo.WithTx(tx).LockInvoiceForOrder(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order invoice")
	}
	return invoice, nil
}

// FindCreditNote returns nil when no credit note carries the refund event id.
// tx may be nil.
func (s *service) FindCreditNote(ctx context.Context, tx *gorm.DB, refundEventID string) (*models.Invoice, error) {
	note, err := s.repo.WithTx(tx).FindByRefundEventID(ctx, strings.TrimSpace(refundEventID))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load credit note")
	}
	return note, nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (*Page, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListForUser(ctx, userID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoices")
	}
	page := &Page{Invoices: make([]Summary, 0, len(rows))}
	if len(rows) > limit {
		last := rows[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		rows = rows[:limit]
	}
	for i := range rows {
		page.Invoices = append(page.Invoices, summaryOf(&rows[i]))
	}
	return page, nil
}

// GetForOwner hides documents of other accounts behind NotFound.
func (s *service) GetForOwner(ctx context.Context, invoiceID, userID uuid.UUID) (*Document, error) {
	invoice, err := s.repo.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, notFoundOr(err, "load invoice")
	}
	owner, err := s.repo.OrderOwner(ctx, invoice.OrderID)
	if err != nil {
		return nil, notFoundOr(err, "load invoice order")
	}
	if owner == nil || *owner != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	}

	snapshot, err := SnapshotOf(invoice)
	if err != nil {
		return nil, err
	}
	doc := &Document{
		Summary:     summaryOf(invoice),
		Snapshot:    snapshot,
		PayloadHash: invoice.PayloadHash,
		Verified:    VerifyHash(invoice.Payload, invoice.PayloadHash),
	}
	if !doc.Verified && s.logg != nil {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"invoice_id": invoice.ID.String(),
		}), "invoice payload hash mismatch", nil)
	}
	return doc, nil
}

func (s *service) RenderPDF(ctx context.Context, invoiceID, userID uuid.UUID) ([]byte, string, error) {
	doc, err := s.GetForOwner(ctx, invoiceID, userID)
	if err != nil {
		return nil, "", err
	}
	if !doc.Verified {
		return nil, "", pkgerrors.New(pkgerrors.CodeConflict, "invoice payload failed verification")
	}
	content, err := renderPDF(doc)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render invoice pdf")
	}
	return content, doc.InvoiceNumber + ".pdf", nil
}

func (s *service) store(ctx context.Context, repo Repository, snapshot Snapshot, relatedID *uuid.UUID, refundEventID *string) (*models.Invoice, error) {
	raw, digest, err := encode(snapshot)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode invoice snapshot")
	}
	invoice := &models.Invoice{
		InvoiceNumber:    snapshot.Number,
		OrderID:          snapshot.OrderID,
		Type:             snapshot.DocumentType,
		Status:           enums.InvoiceStatusIssued,
		RelatedInvoiceID: relatedID,
		RefundEventID:    refundEventID,
		Currency:         snapshot.Currency,
		TotalAmount:      snapshot.Amounts.Total,
		TaxAmount:        snapshot.Amounts.Tax,
		NetAmount:        snapshot.Amounts.Net,
		Payload:          datatypes.JSON(raw),
		PayloadHash:      digest,
		IssuedAt:         snapshot.IssuedAt,
	}
	if err := repo.Create(ctx, invoice); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert invoice")
	}
	return invoice, nil
}

func (s *service) emitIssued(ctx context.Context, tx *gorm.DB, invoice *models.Invoice) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInvoiceIssued,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   invoice.ID,
		Actor:         outbox.SystemActor(),
		Data: payloads.InvoiceIssuedEvent{
			InvoiceID:     invoice.ID,
			InvoiceNumber: invoice.InvoiceNumber,
			OrderID:       invoice.OrderID,
			Type:          invoice.Type,
			Total:         invoice.TotalAmount,
			Currency:      invoice.Currency,
		},
		OccurredAt: invoice.IssuedAt,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit invoice issued")
	}
	return nil
}

// parties resolves billing and shipping. Billing falls back to shipping, and
// a billing party without an email falls back to the account email.
func (s *service) parties(ctx context.Context, repo Repository, order *models.Order) (Party, Party, error) {
	shipping := partyFrom(order.Shipping)
	billing := partyFrom(order.Billing)
	if order.Billing.IsZero() {
		billing = shipping
	}
	if billing.Email == "" && order.GuestEmail != nil {
		billing.Email = strings.TrimSpace(*order.GuestEmail)
	}
	if billing.Email == "" && !order.IsGuest() {
		email, err := repo.AccountEmail(ctx, *order.UserID)
		if err != nil {
			return Party{}, Party{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account email")
		}
		billing.Email = email
	}
	if billing.Email == "" {
		return Party{}, Party{}, pkgerrors.New(pkgerrors.CodeValidation, "billing email required for invoice").
			WithDetails(map[string]any{"order_id": order.ID.String()})
	}
	return billing, shipping, nil
}

func lineItems(items []models.OrderItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, item := range items {
		out = append(out, LineItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Size:        item.Size,
			Color:       item.Color,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
	}
	return out
}

func numberError(err error) error {
	if errors.Is(err, retry.ErrExhausted) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "could not allocate a unique document number")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate document number")
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
