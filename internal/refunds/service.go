package refunds

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/internal/invoices"
	"github.com/prepmood/prepmood-backend/internal/orders"
	"github.com/prepmood/prepmood-backend/internal/orderstatus"
	"github.com/prepmood/prepmood-backend/internal/orderunits"
	"github.com/prepmood/prepmood-backend/internal/stock"
	"github.com/prepmood/prepmood-backend/internal/warranties"
	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/logger"
	"github.com/prepmood/prepmood-backend/pkg/metrics"
	"github.com/prepmood/prepmood-backend/pkg/outbox"
	"github.com/prepmood/prepmood-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service reverses the fulfillment of a single unit.
type Service interface {
	Refund(ctx context.Context, input Input) (*Result, error)
}

type Params struct {
	Tx         txRunner
	Stock      stock.Service
	Orders     orders.Service
	Units      orderunits.Service
	Warranties warranties.Service
	Invoices   invoices.Service
	Aggregator orderstatus.Aggregator
	Outbox     outbox.Emitter
	Metrics    *metrics.FulfillmentMetrics
	Logger     *logger.Logger
}

type service struct {
	tx         txRunner
	stock      stock.Service
	orders     orders.Service
	units      orderunits.Service
	warranties warranties.Service
	invoices   invoices.Service
	aggregator orderstatus.Aggregator
	outbox     outbox.Emitter
	metrics    *metrics.FulfillmentMetrics
	logg       *logger.Logger
}

func NewService(params Params) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Stock == nil:
		return nil, fmt.Errorf("stock service required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders service required")
	case params.Units == nil:
		return nil, fmt.Errorf("order unit service required")
	case params.Warranties == nil:
		return nil, fmt.Errorf("warranty service required")
	case params.Invoices == nil:
		return nil, fmt.Errorf("invoice service required")
	case params.Aggregator == nil:
		return nil, fmt.Errorf("order status aggregator required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		tx:         params.Tx,
		stock:      params.Stock,
		orders:     params.Orders,
		units:      params.Units,
		warranties: params.Warranties,
		invoices:   params.Invoices,
		aggregator: params.Aggregator,
		outbox:     params.Outbox,
		metrics:    params.Metrics,
		logg:       params.Logger,
	}, nil
}

// Refund is decided by the warranty alone: issued or issued_unassigned may be
// refunded, anything else may not, whatever the order status says.
func (s *service) Refund(ctx context.Context, input Input) (*Result, error) {
	key, err := uuid.Parse(strings.TrimSpace(input.IdempotencyKey))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key must be a UUID")
	}
	refundEventID := key.String()
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund reason required")
	}
	publicID := strings.TrimSpace(input.WarrantyPublicID)
	if publicID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "warranty id required")
	}

	if note, err := s.invoices.FindCreditNote(ctx, nil, refundEventID); err != nil {
		return nil, err
	} else if note != nil {
		return s.replayed(ctx, nil, note, publicID)
	}

	// Unlocked read to learn which stock row to lock first.
	peek, err := s.warranties.Find(ctx, nil, publicID)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		source, err := s.units.Find(ctx, tx, peek.SourceOrderItemUnitID)
		if err != nil {
			return err
		}
		// stock, then order, then warranty, then invoice
		if _, err := s.stock.LockUnit(ctx, tx, source.StockUnitID); err != nil {
			return err
		}
		order, err := s.orders.Lock(ctx, tx, source.OrderID)
		if err != nil {
			return err
		}
		warranty, err := s.warranties.LockByPublicID(ctx, tx, publicID)
		if err != nil {
			return err
		}
		unit, err := s.units.Lock(ctx, tx, source.ID)
		if err != nil {
			return err
		}
		related, err := s.invoices.LockInvoiceForOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		// A concurrent call with the same key may have committed while we waited.
		if note, err := s.invoices.FindCreditNote(ctx, tx, refundEventID); err != nil {
			return err
		} else if note != nil {
			result, err = s.replayed(ctx, tx, note, publicID)
			return err
		}

		if warranty.SourceOrderItemUnitID != unit.ID {
			return pkgerrors.New(pkgerrors.CodeConflict, "warranty was reissued concurrently")
		}
		switch warranty.Status {
		case enums.WarrantyStatusIssued, enums.WarrantyStatusIssuedUnassigned:
		case enums.WarrantyStatusActive:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "activated warranties cannot be refunded").
				WithDetails(map[string]any{"reason": "ACTIVE_WARRANTY_CANNOT_REFUND"})
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "warranty is not refundable").
				WithDetails(map[string]any{"current": warranty.Status})
		}

		item := findItem(order, unit.OrderItemID)
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "order item of unit not found").
				WithDetails(map[string]any{"order_item_id": unit.OrderItemID.String()})
		}

		if err := s.warranties.Revoke(ctx, tx, warranty, warranties.AdminActor(input.AdminID), refundEventID, reason); err != nil {
			return err
		}
		if err := s.units.MarkRefunded(ctx, tx, unit); err != nil {
			return err
		}
		if err := s.stock.ReturnUnit(ctx, tx, unit.StockUnitID, order.ID); err != nil {
			return err
		}

		adminID := input.AdminID
		note, _, err := s.invoices.IssueCreditNote(ctx, tx, invoices.CreditNoteInput{
			Order:         order,
			Related:       related,
			Item:          item,
			UnitID:        unit.ID,
			RefundEventID: refundEventID,
			Reason:        reason,
			RefundedBy:    &adminID,
		})
		if err != nil {
			return err
		}

		status, err := s.aggregator.Recompute(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundProcessed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.UserActor(enums.ActorAdmin, input.AdminID),
			Data: payloads.RefundProcessedEvent{
				OrderID:          order.ID,
				WarrantyPublicID: warranty.PublicID,
				RefundEventID:    refundEventID,
				CreditNoteNumber: note.InvoiceNumber,
				Amount:           note.TotalAmount,
				Currency:         note.Currency,
			},
			OccurredAt: note.IssuedAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit refund processed")
		}

		result = &Result{
			RefundEventID:    refundEventID,
			OrderID:          order.ID,
			WarrantyPublicID: warranty.PublicID,
			CreditNoteID:     note.ID,
			CreditNoteNumber: note.InvoiceNumber,
			Amount:           note.TotalAmount,
			Currency:         note.Currency,
			OrderStatus:      status.To,
			RefundedAt:       note.IssuedAt,
		}
		return nil
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithFields(ctx, map[string]any{
				"warranty_public_id": publicID,
				"refund_event_id":    refundEventID,
			}), "refund failed", err)
		}
		return nil, err
	}

	if !result.AlreadyRefunded {
		s.metrics.IncRefund()
		if s.logg != nil {
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"order_id":           result.OrderID.String(),
				"warranty_public_id": publicID,
				"credit_note_number": result.CreditNoteNumber,
			}), "refund processed")
		}
	}
	return result, nil
}

// replayed answers a retried key from the stored credit note. The key must
// have refunded this warranty's physical unit; reusing it for another
// warranty is a conflict, never a success.
func (s *service) replayed(ctx context.Context, tx *gorm.DB, note *models.Invoice, publicID string) (*Result, error) {
	snapshot, err := invoices.SnapshotOf(note)
	if err != nil {
		return nil, err
	}
	if snapshot.RefundedUnitID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credit note has no refunded unit").
			WithDetails(map[string]any{"credit_note_number": note.InvoiceNumber})
	}
	refunded, err := s.units.Find(ctx, tx, *snapshot.RefundedUnitID)
	if err != nil {
		return nil, err
	}
	warranty, err := s.warranties.Find(ctx, tx, publicID)
	if err != nil {
		return nil, err
	}
	if warranty.SerialTokenID != refunded.SerialTokenID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "idempotency key reused for another refund").
			WithDetails(map[string]any{"credit_note_number": note.InvoiceNumber})
	}

	refundEventID := ""
	if note.RefundEventID != nil {
		refundEventID = *note.RefundEventID
	}
	return &Result{
		RefundEventID:    refundEventID,
		OrderID:          note.OrderID,
		WarrantyPublicID: warranty.PublicID,
		CreditNoteID:     note.ID,
		CreditNoteNumber: note.InvoiceNumber,
		Amount:           note.TotalAmount,
		Currency:         note.Currency,
		RefundedAt:       note.IssuedAt,
		AlreadyRefunded:  true,
	}, nil
}

func findItem(order *models.Order, itemID uuid.UUID) *models.OrderItem {
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			return &order.Items[i]
		}
	}
	return nil
}
