package fulfillment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/internal/claims"
	"github.com/prepmood/prepmood-backend/internal/invoices"
	"github.com/prepmood/prepmood-backend/internal/notifications"
	"github.com/prepmood/prepmood-backend/internal/orders"
	"github.com/prepmood/prepmood-backend/internal/orderstatus"
	"github.com/prepmood/prepmood-backend/internal/orderunits"
	"github.com/prepmood/prepmood-backend/internal/paidevents"
	"github.com/prepmood/prepmood-backend/internal/stock"
	"github.com/prepmood/prepmood-backend/internal/warranties"
	"github.com/prepmood/prepmood-backend/pkg/config"
	"github.com/prepmood/prepmood-backend/pkg/db"
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

type userLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Service turns a confirmed payment into reserved stock, order item units,
// warranties and an invoice, all or nothing.
type Service interface {
	ProcessPayment(ctx context.Context, payment ConfirmedPayment) (*Outcome, error)
	// RecoverStale reruns paid events an earlier attempt left unfinished.
	RecoverStale(ctx context.Context, staleBefore time.Time, limit int) (RecoveryReport, error)
}

type Params struct {
	Tx          txRunner
	PaidEvents  paidevents.Service
	Stock       stock.Service
	Orders      orders.Service
	OrderRepo   orders.Repository
	Units       orderunits.Service
	Warranties  warranties.Service
	Invoices    invoices.Service
	Aggregator  orderstatus.Aggregator
	GuestTokens claims.Service
	Users       userLookup
	Outbox      outbox.Emitter
	Notifier    notifications.Notifier
	Metrics     *metrics.FulfillmentMetrics
	Logger      *logger.Logger
	Config      config.FulfillmentConfig
}

type service struct {
	tx          txRunner
	paidEvents  paidevents.Service
	stock       stock.Service
	orders      orders.Service
	orderRepo   orders.Repository
	units       orderunits.Service
	warranties  warranties.Service
	invoices    invoices.Service
	aggregator  orderstatus.Aggregator
	guestTokens claims.Service
	users       userLookup
	outbox      outbox.Emitter
	notifier    notifications.Notifier
	metrics     *metrics.FulfillmentMetrics
	logg        *logger.Logger
	cfg         config.FulfillmentConfig
	now         func() time.Time
}

func NewService(params Params) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.PaidEvents == nil:
		return nil, fmt.Errorf("paid event service required")
	case params.Stock == nil:
		return nil, fmt.Errorf("stock service required")
	case params.Orders == nil || params.OrderRepo == nil:
		return nil, fmt.Errorf("orders service and repository required")
	case params.Units == nil:
		return nil, fmt.Errorf("order unit service required")
	case params.Warranties == nil:
		return nil, fmt.Errorf("warranty service required")
	case params.Invoices == nil:
		return nil, fmt.Errorf("invoice service required")
	case params.Aggregator == nil:
		return nil, fmt.Errorf("order status aggregator required")
	case params.GuestTokens == nil:
		return nil, fmt.Errorf("guest token service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	cfg := params.Config
	if cfg.RecoveryMaxAttempts <= 0 {
		cfg.RecoveryMaxAttempts = 5
	}
	return &service{
		tx:          params.Tx,
		paidEvents:  params.PaidEvents,
		stock:       params.Stock,
		orders:      params.Orders,
		orderRepo:   params.OrderRepo,
		units:       params.Units,
		warranties:  params.Warranties,
		invoices:    params.Invoices,
		aggregator:  params.Aggregator,
		guestTokens: params.GuestTokens,
		users:       params.Users,
		outbox:      params.Outbox,
		notifier:    params.Notifier,
		metrics:     params.Metrics,
		logg:        params.Logger,
		cfg:         cfg,
		now:         time.Now,
	}, nil
}

func (s *service) ProcessPayment(ctx context.Context, payment ConfirmedPayment) (*Outcome, error) {
	started := s.now()
	recorded, err := s.paidEvents.Record(ctx, paidevents.RecordInput{
		OrderID:     payment.OrderID,
		PaymentKey:  payment.PaymentKey,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Source:      payment.Source,
		RawPayload:  payment.RawPayload,
		ConfirmedAt: payment.ConfirmedAt,
	})
	if err != nil {
		return nil, err
	}
	event := recorded.Event
	ctx = s.withEventFields(ctx, event)

	if recorded.Processing.Status == enums.ProcessingStatusSuccess {
		outcome, err := s.storedOutcome(ctx, event)
		if err != nil {
			return nil, err
		}
		s.metrics.ObservePayment("replay", s.now().Sub(started))
		return outcome, nil
	}

	if err := s.paidEvents.MarkProcessing(ctx, event.ID); err != nil {
		return nil, err
	}

	outcome, order, err := s.fulfill(ctx, event)
	if err != nil {
		s.fail(ctx, event, err)
		s.metrics.ObservePayment("failed", s.now().Sub(started))
		return nil, err
	}

	if err := s.paidEvents.MarkSuccess(ctx, event.ID); err != nil {
		// The chain is committed; a rerun reuses its units and marks success.
		if s.logg != nil {
			s.logg.Error(ctx, "mark paid event success", err)
		}
	}
	s.metrics.ObservePayment("success", s.now().Sub(started))
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"units":        len(outcome.UnitIDs),
			"order_status": outcome.OrderStatus,
			"reused_units": outcome.ReusedUnits,
			"invoice":      outcome.InvoiceNumber != "",
		}), "payment fulfilled")
	}
	s.notify(ctx, order, outcome)
	return outcome, nil
}

// fulfill runs the whole chain in one transaction.
func (s *service) fulfill(ctx context.Context, event models.PaidEvent) (*Outcome, *models.Order, error) {
	var (
		outcome *Outcome
		order   *models.Order
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.orders.Lock(ctx, tx, event.OrderID)
		if err != nil {
			return err
		}
		order = locked
		if err := checkAmount(order, event); err != nil {
			return err
		}

		units, err := s.units.ListByOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		reused := len(units) > 0
		if !reused {
			lines := make([]stock.Line, 0, len(order.Items))
			for _, item := range order.Items {
				lines = append(lines, stock.LineFromItem(item))
			}
			reservations, err := s.stock.Reserve(ctx, tx, order.ID, lines)
			if err != nil {
				return err
			}
			if units, err = s.units.Materialize(ctx, tx, order.ID, reservations); err != nil {
				return err
			}
		}

		issued, err := s.warranties.IssueForUnits(ctx, tx, order, liveUnits(units))
		if err != nil {
			return err
		}

		// Stamped before the invoice so its sealed snapshot carries paid_at.
		paidAt := event.ConfirmedAt.UTC()
		if err := s.orderRepo.WithTx(tx).MarkPaid(ctx, order.ID, paidAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp order paid")
		}
		if order.PaidAt == nil {
			order.PaidAt = &paidAt
		}

		var invoiceNumber string
		if err := db.WithSavepoint(tx, "fulfillment_invoice", func(tx *gorm.DB) error {
			invoice, _, err := s.invoices.IssueForOrder(ctx, tx, order)
			if err != nil {
				return err
			}
			invoiceNumber = invoice.InvoiceNumber
			return nil
		}); err != nil {
			// The sale stands without its document; support reissues it.
			if s.logg != nil {
				s.logg.Error(ctx, "invoice issuance failed; continuing without invoice", err)
			}
		}

		status, err := s.aggregator.Recompute(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		order.Status = status.To

		var guest *claims.IssuedToken
		if order.IsGuest() {
			if guest, err = s.guestTokens.IssueGuestAccessToken(ctx, tx, order.ID); err != nil {
				return err
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.SystemActor(),
			Data: payloads.OrderPaidEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				PaidEventID:   event.ID,
				Amount:        event.Amount,
				Currency:      event.Currency,
				UnitCount:     len(units),
				InvoiceNumber: invoiceNumber,
				Guest:         order.IsGuest(),
			},
			OccurredAt: paidAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order paid")
		}

		outcome = &Outcome{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			PaidEventID:   event.ID,
			OrderStatus:   status.To,
			InvoiceNumber: invoiceNumber,
			GuestAccess:   guest,
			ReusedUnits:   reused,
		}
		for _, unit := range units {
			outcome.UnitIDs = append(outcome.UnitIDs, unit.ID)
		}
		for _, w := range issued {
			outcome.WarrantyPublicIDs = append(outcome.WarrantyPublicIDs, w.Warranty.PublicID)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outcome, order, nil
}

// fail marks the event failed and runs the follow-up for the error class:
// shortages become operator issues, anything else triggers the orphan sweep.
func (s *service) fail(ctx context.Context, event models.PaidEvent, cause error) {
	var errs []error
	if err := s.paidEvents.MarkFailed(ctx, event.ID, cause); err != nil {
		errs = append(errs, err)
	}

	if shortage, ok := stock.AsShortage(cause); ok {
		s.metrics.IncShortage()
		if err := s.stock.RecordShortage(ctx, event.ID, event.OrderID, shortage.Shortages); err != nil {
			errs = append(errs, err)
		}
		if err := s.emitShortage(ctx, event, shortage.Shortages); err != nil {
			errs = append(errs, err)
		}
	} else if !pkgerrors.IsCode(cause, pkgerrors.CodeValidation) {
		if _, err := s.stock.ReleaseOrphaned(ctx, event.OrderID); err != nil {
			errs = append(errs, err)
		}
	}

	if s.logg == nil {
		return
	}
	s.logg.Error(ctx, "payment fulfillment failed", cause)
	if combined := multierr.Combine(errs...); combined != nil {
		s.logg.Error(ctx, "payment failure follow-up incomplete", combined)
	}
}

func (s *service) emitShortage(ctx context.Context, event models.PaidEvent, shortages []stock.Shortage) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := s.now().UTC()
		for _, shortage := range shortages {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventStockShortage,
				AggregateType: enums.AggregateOrder,
				AggregateID:   event.OrderID,
				Actor:         outbox.SystemActor(),
				Data: payloads.StockShortageEvent{
					OrderID:     event.OrderID,
					PaidEventID: event.ID,
					ProductID:   shortage.Variant.ProductID,
					Size:        shortage.Variant.Size,
					Color:       shortage.Variant.Color,
					Requested:   shortage.Requested,
					Available:   shortage.Available,
				},
				OccurredAt: now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// storedOutcome rebuilds the result of a run that already succeeded.
func (s *service) storedOutcome(ctx context.Context, event models.PaidEvent) (*Outcome, error) {
	view, err := s.orders.StatusForGuest(ctx, event.OrderID)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{
		OrderID:          view.OrderID,
		OrderNumber:      view.OrderNumber,
		PaidEventID:      event.ID,
		OrderStatus:      view.Status,
		AlreadyProcessed: true,
	}
	for _, unit := range view.Units {
		outcome.UnitIDs = append(outcome.UnitIDs, unit.UnitID)
		if unit.WarrantyPublicID != nil {
			outcome.WarrantyPublicIDs = append(outcome.WarrantyPublicIDs, *unit.WarrantyPublicID)
		}
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		invoice, err := s.invoices.LockInvoiceForOrder(ctx, tx, event.OrderID)
		if err != nil {
			return err
		}
		if invoice != nil {
			outcome.InvoiceNumber = invoice.InvoiceNumber
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// notify runs after commit; a failed delivery is logged and never undoes the sale.
func (s *service) notify(ctx context.Context, order *models.Order, outcome *Outcome) {
	if s.notifier == nil || order == nil {
		return
	}
	msg := notifications.OrderConfirmation{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		Email:             s.recipient(ctx, order),
		Total:             order.TotalAmount,
		Currency:          order.Currency,
		WarrantyPublicIDs: outcome.WarrantyPublicIDs,
	}
	if outcome.GuestAccess != nil && s.cfg.OrderLookupURLFormat != "" {
		msg.GuestLookupURL = fmt.Sprintf(s.cfg.OrderLookupURLFormat, outcome.GuestAccess.Token)
	}
	if msg.Email == "" {
		if s.logg != nil {
			s.logg.Warn(ctx, "order confirmation skipped: no recipient")
		}
		return
	}
	if err := s.notifier.OrderConfirmed(ctx, msg); err != nil && s.logg != nil {
		s.logg.Error(ctx, "order confirmation delivery failed", err)
	}
}

func (s *service) recipient(ctx context.Context, order *models.Order) string {
	if order.GuestEmail != nil && strings.TrimSpace(*order.GuestEmail) != "" {
		return strings.TrimSpace(*order.GuestEmail)
	}
	if order.UserID != nil && s.users != nil {
		if user, err := s.users.FindByID(ctx, *order.UserID); err == nil && user != nil {
			return user.Email
		}
	}
	if order.Billing != nil {
		return strings.TrimSpace(order.Billing.Email)
	}
	return ""
}

func (s *service) RecoverStale(ctx context.Context, staleBefore time.Time, limit int) (RecoveryReport, error) {
	var report RecoveryReport
	events, err := s.paidEvents.ListRecoverable(ctx, s.cfg.RecoveryMaxAttempts, staleBefore, limit)
	if err != nil {
		return report, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list recoverable paid events")
	}
	report.Scanned = len(events)

	var errs []error
	for _, event := range events {
		_, err := s.ProcessPayment(ctx, ConfirmedPayment{
			OrderID:     event.OrderID,
			PaymentKey:  event.PaymentKey,
			Amount:      event.Amount,
			Currency:    event.Currency,
			Source:      enums.PaidEventSourceRecovery,
			ConfirmedAt: event.ConfirmedAt,
		})
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("paid event %s: %w", event.ID, err))
			continue
		}
		report.Succeeded++
	}
	return report, multierr.Combine(errs...)
}

func (s *service) withEventFields(ctx context.Context, event models.PaidEvent) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithFields(ctx, map[string]any{
		"order_id":      event.OrderID.String(),
		"paid_event_id": event.ID.String(),
	})
}

func checkAmount(order *models.Order, event models.PaidEvent) error {
	if !order.TotalAmount.Equal(event.Amount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "paid amount does not match order total").
			WithDetails(map[string]any{"expected": order.TotalAmount.String(), "paid": event.Amount.String()})
	}
	if order.Currency != event.Currency {
		return pkgerrors.New(pkgerrors.CodeValidation, "paid currency does not match order").
			WithDetails(map[string]any{"expected": order.Currency, "paid": event.Currency})
	}
	return nil
}

// liveUnits drops refunded units so a rerun never resurrects their warranties.
func liveUnits(units []models.OrderItemUnit) []models.OrderItemUnit {
	out := make([]models.OrderItemUnit, 0, len(units))
	for _, unit := range units {
		if unit.Status != enums.UnitStatusRefunded {
			out = append(out, unit)
		}
	}
	return out
}
