package fulfillment

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/internal/claims"
	"github.com/prepmood/prepmood-backend/internal/invoices"
	"github.com/prepmood/prepmood-backend/internal/notifications"
	"github.com/prepmood/prepmood-backend/internal/orders"
	"github.com/prepmood/prepmood-backend/internal/orderstatus"
	"github.com/prepmood/prepmood-backend/internal/orderunits"
	"github.com/prepmood/prepmood-backend/internal/paidevents"
	"github.com/prepmood/prepmood-backend/internal/refunds"
	"github.com/prepmood/prepmood-backend/internal/stock"
	"github.com/prepmood/prepmood-backend/internal/users"
	"github.com/prepmood/prepmood-backend/internal/warranties"
	"github.com/prepmood/prepmood-backend/pkg/config"
	"github.com/prepmood/prepmood-backend/pkg/db/dbtest"
	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/outbox"
)

type recordingNotifier struct {
	confirmations []notifications.OrderConfirmation
}

func (n *recordingNotifier) OrderConfirmed(_ context.Context, msg notifications.OrderConfirmation) error {
	n.confirmations = append(n.confirmations, msg)
	return nil
}

func (n *recordingNotifier) TransferRequested(context.Context, notifications.TransferRequest) error {
	return nil
}

type fixture struct {
	svc      Service
	refunds  refunds.Service
	conn     *gorm.DB
	notifier *recordingNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	orderRepo := orders.NewRepository(conn)
	unitRepo := orderunits.NewRepository(conn)
	paidRepo := paidevents.NewRepository(conn)

	paid, err := paidevents.NewService(client, paidRepo, nil)
	require.NoError(t, err)
	stockSvc, err := stock.NewService(client, stock.NewRepository(conn), nil)
	require.NoError(t, err)
	orderSvc, err := orders.NewService(orderRepo)
	require.NoError(t, err)
	unitSvc, err := orderunits.NewService(unitRepo, nil)
	require.NoError(t, err)
	ws, err := warranties.NewService(warranties.ServiceParams{
		Tx: client, Repo: warranties.NewRepository(conn), Orders: orderRepo, Units: unitRepo, Outbox: emitter,
	})
	require.NoError(t, err)
	inv, err := invoices.NewService(invoices.Params{
		Repo: invoices.NewRepository(conn), Outbox: emitter, Config: config.InvoiceConfig{TaxRatePercent: "10"},
	})
	require.NoError(t, err)
	agg, err := orderstatus.NewAggregator(orderRepo, unitRepo, paidRepo, emitter, nil)
	require.NoError(t, err)
	claimSvc, err := claims.NewService(claims.Params{
		Tx: client, Repo: claims.NewRepository(conn), Orders: orderRepo, Warranties: ws, Outbox: emitter,
	})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	svc, err := NewService(Params{
		Tx:          client,
		PaidEvents:  paid,
		Stock:       stockSvc,
		Orders:      orderSvc,
		OrderRepo:   orderRepo,
		Units:       unitSvc,
		Warranties:  ws,
		Invoices:    inv,
		Aggregator:  agg,
		GuestTokens: claimSvc,
		Users:       users.NewRepository(conn),
		Outbox:      emitter,
		Notifier:    notifier,
		Config:      config.FulfillmentConfig{OrderLookupURLFormat: "https://shop.test/guest?token=%s"},
	})
	require.NoError(t, err)

	refundSvc, err := refunds.NewService(refunds.Params{
		Tx: client, Stock: stockSvc, Orders: orderSvc, Units: unitSvc, Warranties: ws,
		Invoices: inv, Aggregator: agg, Outbox: emitter,
	})
	require.NoError(t, err)

	return fixture{svc: svc, refunds: refundSvc, conn: conn, notifier: notifier}
}

func paymentFor(order models.Order) ConfirmedPayment {
	return ConfirmedPayment{
		OrderID:     order.ID,
		PaymentKey:  "pay_" + order.OrderNumber,
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		Source:      enums.PaidEventSourceWebhook,
		RawPayload:  []byte(`{"status":"DONE"}`),
		ConfirmedAt: time.Now().UTC(),
	}
}

func (f fixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func (f fixture) processing(t *testing.T, orderID uuid.UUID) models.PaidEventProcessing {
	t.Helper()
	var row models.PaidEventProcessing
	require.NoError(t, f.conn.
		Joins("JOIN paid_events pe ON pe.id = paid_event_processings.paid_event_id").
		Where("pe.order_id = ?", orderID).
		First(&row).Error)
	return row
}

func TestProcessPaymentFulfillsGuestOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.SeedStock(t, f.conn, "coat", "M", "black", 3)
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderSeed{GuestEmail: "guest@example.com", Lines: []dbtest.LineSeed{
		{ProductID: "coat", Size: "M", Color: "black", Quantity: 2, UnitPrice: 1200000},
	}})

	outcome, err := f.svc.ProcessPayment(ctx, paymentFor(order))
	require.NoError(t, err)
	require.False(t, outcome.AlreadyProcessed)
	require.False(t, outcome.ReusedUnits)
	require.Len(t, outcome.UnitIDs, 2)
	require.Len(t, outcome.WarrantyPublicIDs, 2)
	require.Equal(t, enums.OrderStatusPaid, outcome.OrderStatus)
	require.True(t, strings.HasPrefix(outcome.InvoiceNumber, "PM-INV-"))
	require.NotNil(t, outcome.GuestAccess)

	require.EqualValues(t, 2, dbtest.CountStock(t, f.conn, "coat", enums.StockStatusReserved))
	require.EqualValues(t, 1, dbtest.CountStock(t, f.conn, "coat", enums.StockStatusInStock))
	require.EqualValues(t, 2, f.count(t, &models.Warranty{}, "status = ?", enums.WarrantyStatusIssuedUnassigned))
	require.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderPaid))
	require.EqualValues(t, 2, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventWarrantyIssued))
	require.Equal(t, enums.ProcessingStatusSuccess, f.processing(t, order.ID).Status)

	var stored models.Order
	require.NoError(t, f.conn.First(&stored, "id = ?", order.ID).Error)
	require.NotNil(t, stored.PaidAt)
	require.Equal(t, enums.OrderStatusPaid, stored.Status)

	require.Len(t, f.notifier.confirmations, 1)
	sent := f.notifier.confirmations[0]
	require.Equal(t, "guest@example.com", sent.Email)
	require.Equal(t, "https://shop.test/guest?token="+outcome.GuestAccess.Token, sent.GuestLookupURL)
	require.ElementsMatch(t, outcome.WarrantyPublicIDs, sent.WarrantyPublicIDs)
}

func TestInvoiceSnapshotCarriesPaidAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.SeedStock(t, f.conn, "scarf", "F", "grey", 1)
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderSeed{GuestEmail: "guest@example.com", Lines: []dbtest.LineSeed{
		{ProductID: "scarf", Size: "F", Color: "grey", Quantity: 1, UnitPrice: 90000},
	}})
	payment := paymentFor(order)
	payment.ConfirmedAt = time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

	outcome, err := f.svc.ProcessPayment(ctx, payment)
	require.NoError(t, err)
	require.NotEmpty(t, outcome.InvoiceNumber)

	var invoice models.Invoice
	require.NoError(t, f.conn.First(&invoice, "invoice_number = ?", outcome.InvoiceNumber).Error)
	var snapshot invoices.Snapshot
	require.NoError(t, json.Unmarshal(invoice.Payload, &snapshot))
	require.NotNil(t, snapshot.PaidAt)
	require.True(t, payment.ConfirmedAt.Equal(*snapshot.PaidAt), "paid_at %v", snapshot.PaidAt)
}

func TestProcessPaymentReplayReturnsStoredOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := dbtest.SeedUser(t, f.conn, "member@example.com")
	dbtest.SeedStock(t, f.conn, "bag", "", "", 2)
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderSeed{UserID: &user.ID, Lines: []dbtest.LineSeed{
		{ProductID: "bag", Quantity: 1, UnitPrice: 500000},
	}})
	payment := paymentFor(order)

	first, err := f.svc.ProcessPayment(ctx, payment)
	require.NoError(t, err)
	require.Nil(t, first.GuestAccess)
	require.Equal(t, "member@example.com", f.notifier.confirmations[0].Email)

	again, err := f.svc.ProcessPayment(ctx, payment)
	require.NoError(t, err)
	require.True(t, again.AlreadyProcessed)
	require.Equal(t, first.UnitIDs, again.UnitIDs)
	require.Equal(t, first.WarrantyPublicIDs, again.WarrantyPublicIDs)
	require.Equal(t, first.InvoiceNumber, again.InvoiceNumber)

	require.EqualValues(t, 1, dbtest.CountStock(t, f.conn, "bag", enums.StockStatusReserved))
	require.EqualValues(t, 1, f.count(t, &models.PaidEvent{}, "order_id = ?", order.ID))
	require.EqualValues(t, 1, f.count(t, &models.Invoice{}, "order_id = ?", order.ID))
	require.Len(t, f.notifier.confirmations, 1)
}

func TestProcessPaymentReusesCommittedUnits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.SeedStock(t, f.conn, "ring", "", "gold", 2)
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderSeed{GuestEmail: "guest@example.com", Lines: []dbtest.LineSeed{
		{ProductID: "ring", Color: "gold", Quantity: 1, UnitPrice: 300000},
	}})
	first, err := f.svc.ProcessPayment(ctx, paymentFor(order))
	require.NoError(t, err)

	// A crash between commit and the success mark leaves the record failed.
	require.NoError(t, f.conn.Model(&models.PaidEventProcessing{}).
		Where("paid_event_id = ?", first.PaidEventID).
		Update("status", enums.ProcessingStatusFailed).Error)

	second, err := f.svc.ProcessPayment(ctx, paymentFor(order))
	require.NoError(t, err)
	require.True(t, second.ReusedUnits)
	require.Equal(t, first.UnitIDs, second.UnitIDs)
	require.Equal(t, first.WarrantyPublicIDs, second.WarrantyPublicIDs)
	require.Equal(t, first.InvoiceNumber, second.InvoiceNumber)
	require.EqualValues(t, 1, dbtest.CountStock(t, f.conn, "ring", enums.StockStatusReserved))
	require.EqualValues(t, 1, f.count(t, &models.OrderItemUnit{}, "order_id = ?", order.ID))
	require.Equal(t, enums.ProcessingStatusSuccess, f.processing(t, order.ID).Status)
}

func TestProcessPaymentShortageReservesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.SeedStock(t, f.conn, "coat", "L", "", 1)
	dbtest.SeedStock(t, f.conn, "scarf", "", "", 5)
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderSeed{GuestEmail: "guest@example.com", Lines: []dbtest.LineSeed{
		{ProductID: "scarf", Quantity: 1, UnitPrice: 90000},
		{ProductID: "coat", Size: "L", Quantity: 2, UnitPrice: 1200000},
	}})

	_, err := f.svc.ProcessPayment(ctx, paymentFor(order))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	require.EqualValues(t, 0, dbtest.CountStock(t, f.conn, "scarf", enums.StockStatusReserved))
	require.EqualValues(t, 1, dbtest.CountStock(t, f.conn, "coat", enums.StockStatusInStock))
	require.EqualValues(t, 0, f.count(t, &models.OrderItemUnit{}, "order_id = ?", order.ID))
	require.EqualValues(t, 1, f.count(t, &models.OrderStockIssue{}, "order_id = ? AND product_id = ?", order.ID, "coat"))
	require.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventStockShortage))
	require.EqualValues(t, 0, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderPaid))

	processing := f.processing(t, order.ID)
	require.Equal(t, enums.ProcessingStatusFailed, processing.Status)
	require.NotNil(t, processing.LastError)
	require.Empty(t, f.notifier.confirmations)
}

func TestProcessPaymentRejectsAmountMismatch(t *testing.T) {
	f := newFixture(t)
	dbtest.SeedStock(t, f.conn, "bag", "", "", 1)
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderSeed{GuestEmail: "guest@example.com", Lines: []dbtest.LineSeed{
		{ProductID: "bag", Quantity: 1, UnitPrice: 500000},
	}})
	payment := paymentFor(order)
	payment.Amount = decimal.NewFromInt(499000)

	_, err := f.svc.ProcessPayment(context.Background(), payment)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Equal(t, enums.ProcessingStatusFailed, f.processing(t, order.ID).Status)
	require.EqualValues(t, 1, dbtest.CountStock(t, f.conn, "bag", enums.StockStatusInStock))
}

func TestRefundedUnitIsResoldWithTheSameWarranty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := dbtest.SeedUser(t, f.conn, "first@example.com")
	dbtest.SeedStock(t, f.conn, "watch", "", "", 1)
	first := dbtest.SeedOrder(t, f.conn, dbtest.OrderSeed{UserID: &buyer.ID, Lines: []dbtest.LineSeed{
		{ProductID: "watch", Quantity: 1, UnitPrice: 2000000},
	}})
	sold, err := f.svc.ProcessPayment(ctx, paymentFor(first))
	require.NoError(t, err)
	require.Len(t, sold.WarrantyPublicIDs, 1)

	_, err = f.refunds.Refund(ctx, refunds.Input{
		WarrantyPublicID: sold.WarrantyPublicIDs[0],
		AdminID:          uuid.New(),
		Reason:           "returned unopened",
		IdempotencyKey:   uuid.NewString(),
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, dbtest.CountStock(t, f.conn, "watch", enums.StockStatusInStock))

	second := dbtest.SeedOrder(t, f.conn, dbtest.OrderSeed{GuestEmail: "next@example.com", Lines: []dbtest.LineSeed{
		{ProductID: "watch", Quantity: 1, UnitPrice: 2000000},
	}})
	resold, err := f.svc.ProcessPayment(ctx, paymentFor(second))
	require.NoError(t, err)
	require.Equal(t, sold.WarrantyPublicIDs, resold.WarrantyPublicIDs)

	var w models.Warranty
	require.NoError(t, f.conn.First(&w, "public_id = ?", resold.WarrantyPublicIDs[0]).Error)
	require.Equal(t, enums.WarrantyStatusIssuedUnassigned, w.Status)
	require.Nil(t, w.OwnerUserID)
	require.Equal(t, 1, w.ResaleCount)
	require.Equal(t, resold.UnitIDs[0], w.SourceOrderItemUnitID)

	var firstOrder models.Order
	require.NoError(t, f.conn.First(&firstOrder, "id = ?", first.ID).Error)
	require.Equal(t, enums.OrderStatusRefunded, firstOrder.Status)
}

func TestRecoverStaleReprocessesFailedEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderSeed{GuestEmail: "guest@example.com", Lines: []dbtest.LineSeed{
		{ProductID: "belt", Quantity: 1, UnitPrice: 150000},
	}})

	_, err := f.svc.ProcessPayment(ctx, paymentFor(order))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	dbtest.SeedStock(t, f.conn, "belt", "", "", 1)
	report, err := f.svc.RecoverStale(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Equal(t, RecoveryReport{Scanned: 1, Succeeded: 1}, report)
	require.Equal(t, enums.ProcessingStatusSuccess, f.processing(t, order.ID).Status)
	require.EqualValues(t, 1, dbtest.CountStock(t, f.conn, "belt", enums.StockStatusReserved))
}
