// Package wiring builds the fulfillment service graph shared by the api and
// cron-worker binaries.
package wiring

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/prepmood/prepmood-backend/internal/claims"
	"github.com/prepmood/prepmood-backend/internal/fulfillment"
	"github.com/prepmood/prepmood-backend/internal/invoices"
	"github.com/prepmood/prepmood-backend/internal/notifications"
	"github.com/prepmood/prepmood-backend/internal/orders"
	"github.com/prepmood/prepmood-backend/internal/orderstatus"
	"github.com/prepmood/prepmood-backend/internal/orderunits"
	"github.com/prepmood/prepmood-backend/internal/paidevents"
	"github.com/prepmood/prepmood-backend/internal/refunds"
	"github.com/prepmood/prepmood-backend/internal/shipments"
	"github.com/prepmood/prepmood-backend/internal/stock"
	"github.com/prepmood/prepmood-backend/internal/transfers"
	"github.com/prepmood/prepmood-backend/internal/users"
	"github.com/prepmood/prepmood-backend/internal/warranties"
	"github.com/prepmood/prepmood-backend/pkg/config"
	"github.com/prepmood/prepmood-backend/pkg/db"
	"github.com/prepmood/prepmood-backend/pkg/logger"
	"github.com/prepmood/prepmood-backend/pkg/metrics"
	"github.com/prepmood/prepmood-backend/pkg/outbox"
	"github.com/prepmood/prepmood-backend/pkg/redis"
)

type Services struct {
	Fulfillment fulfillment.Service
	Orders      orders.Service
	Claims      claims.Service
	Warranties  warranties.Service
	Transfers   transfers.Service
	Invoices    invoices.Service
	Refunds     refunds.Service
	Shipments   shipments.Service
	Stock       stock.Service
	OutboxRepo  *outbox.Repository
}

// Build wires every service against one database and Redis client. reg may be
// nil when the caller does not export fulfillment metrics.
func Build(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (*Services, error) {
	conn := dbClient.DB()

	var fulfillmentMetrics *metrics.FulfillmentMetrics
	if reg != nil {
		fulfillmentMetrics = metrics.NewFulfillmentMetrics(reg)
	}

	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)

	notifier, err := notifications.NewLogNotifier(logg)
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}
	userRepo := users.NewRepository(conn)

	ordersRepo := orders.NewRepository(conn)
	ordersSvc, err := orders.NewService(ordersRepo)
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	unitsRepo := orderunits.NewRepository(conn)
	unitsSvc, err := orderunits.NewService(unitsRepo, logg)
	if err != nil {
		return nil, fmt.Errorf("order units service: %w", err)
	}

	stockSvc, err := stock.NewService(dbClient, stock.NewRepository(conn), logg)
	if err != nil {
		return nil, fmt.Errorf("stock service: %w", err)
	}

	paidRepo := paidevents.NewRepository(conn)
	paidSvc, err := paidevents.NewService(dbClient, paidRepo, logg)
	if err != nil {
		return nil, fmt.Errorf("paid events service: %w", err)
	}

	aggregator, err := orderstatus.NewAggregator(ordersRepo, unitsRepo, paidRepo, emitter, logg)
	if err != nil {
		return nil, fmt.Errorf("order status aggregator: %w", err)
	}

	warrantySvc, err := warranties.NewService(warranties.ServiceParams{
		Tx:     dbClient,
		Repo:   warranties.NewRepository(conn),
		Orders: ordersRepo,
		Units:  unitsRepo,
		Outbox: emitter,
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("warranties service: %w", err)
	}

	invoiceSvc, err := invoices.NewService(invoices.Params{
		Repo:   invoices.NewRepository(conn),
		Outbox: emitter,
		Logger: logg,
		Config: cfg.Invoice,
	})
	if err != nil {
		return nil, fmt.Errorf("invoices service: %w", err)
	}

	claimSvc, err := claims.NewService(claims.Params{
		Tx:         dbClient,
		Repo:       claims.NewRepository(conn),
		Orders:     ordersRepo,
		Warranties: warrantySvc,
		Outbox:     emitter,
		Counter:    redisClient,
		Metrics:    fulfillmentMetrics,
		Logger:     logg,
		Config:     cfg.Fulfillment,
	})
	if err != nil {
		return nil, fmt.Errorf("claims service: %w", err)
	}

	transferSvc, err := transfers.NewService(transfers.Params{
		Tx:         dbClient,
		Repo:       transfers.NewRepository(conn),
		Warranties: warrantySvc,
		Users:      userRepo,
		Outbox:     emitter,
		Notifier:   notifier,
		Logger:     logg,
		Config:     cfg.Fulfillment,
	})
	if err != nil {
		return nil, fmt.Errorf("transfers service: %w", err)
	}

	fulfillmentSvc, err := fulfillment.NewService(fulfillment.Params{
		Tx:          dbClient,
		PaidEvents:  paidSvc,
		Stock:       stockSvc,
		Orders:      ordersSvc,
		OrderRepo:   ordersRepo,
		Units:       unitsSvc,
		Warranties:  warrantySvc,
		Invoices:    invoiceSvc,
		Aggregator:  aggregator,
		GuestTokens: claimSvc,
		Users:       userRepo,
		Outbox:      emitter,
		Notifier:    notifier,
		Metrics:     fulfillmentMetrics,
		Logger:      logg,
		Config:      cfg.Fulfillment,
	})
	if err != nil {
		return nil, fmt.Errorf("fulfillment service: %w", err)
	}

	refundSvc, err := refunds.NewService(refunds.Params{
		Tx:         dbClient,
		Stock:      stockSvc,
		Orders:     ordersSvc,
		Units:      unitsSvc,
		Warranties: warrantySvc,
		Invoices:   invoiceSvc,
		Aggregator: aggregator,
		Outbox:     emitter,
		Metrics:    fulfillmentMetrics,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("refunds service: %w", err)
	}

	shipmentSvc, err := shipments.NewService(shipments.Params{
		Tx:         dbClient,
		Orders:     ordersSvc,
		Units:      unitsRepo,
		Aggregator: aggregator,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("shipments service: %w", err)
	}

	return &Services{
		Fulfillment: fulfillmentSvc,
		Orders:      ordersSvc,
		Claims:      claimSvc,
		Warranties:  warrantySvc,
		Transfers:   transferSvc,
		Invoices:    invoiceSvc,
		Refunds:     refundSvc,
		Shipments:   shipmentSvc,
		Stock:       stockSvc,
		OutboxRepo:  outboxRepo,
	}, nil
}
