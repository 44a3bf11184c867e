package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prepmood/prepmood-backend/api/controllers"
	"github.com/prepmood/prepmood-backend/api/middleware"
	"github.com/prepmood/prepmood-backend/internal/claims"
	"github.com/prepmood/prepmood-backend/internal/fulfillment"
	"github.com/prepmood/prepmood-backend/internal/invoices"
	"github.com/prepmood/prepmood-backend/internal/orders"
	"github.com/prepmood/prepmood-backend/internal/refunds"
	"github.com/prepmood/prepmood-backend/internal/shipments"
	"github.com/prepmood/prepmood-backend/internal/stock"
	"github.com/prepmood/prepmood-backend/internal/transfers"
	"github.com/prepmood/prepmood-backend/internal/warranties"
	"github.com/prepmood/prepmood-backend/pkg/config"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	"github.com/prepmood/prepmood-backend/pkg/logger"
	"github.com/prepmood/prepmood-backend/pkg/redis"
)

// Store is the Redis surface the HTTP layer needs for rate limiting and
// idempotent replay.
type Store interface {
	redis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

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
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	store Store,
	readiness map[string]controllers.Pinger,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	guestPolicy := middleware.NewRateLimitPolicy(
		"guest_order",
		cfg.RateLimit.GuestWindow,
		cfg.RateLimit.GuestIPLimit,
		cfg.RateLimit.GuestOrderLimit,
		middleware.URLParamSubject("orderId"),
	)
	guestLimit := middleware.RateLimit(guestPolicy, store, logg)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/payments/confirm", controllers.PaymentConfirm(svc.Fulfillment, cfg.Fulfillment.PaymentCallbackSecret, logg))

		r.Get("/warranties/{publicId}", controllers.WarrantyLookup(svc.Warranties, logg))

		// Guests reach these with the token mailed at purchase; signed in
		// owners with their bearer token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.With(guestLimit).Get("/orders/{orderId}/status", controllers.OrderStatus(svc.Orders, svc.Claims, logg))
			r.With(guestLimit).Post("/orders/{orderId}/claim-token", controllers.OrderClaimToken(svc.Claims, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Post("/orders/{orderId}/claim", controllers.OrderClaim(svc.Claims, logg))

			r.Post("/warranties/transfer/accept", controllers.WarrantyTransferAccept(svc.Transfers, logg))
			r.Post("/warranties/{publicId}/activate", controllers.WarrantyActivate(svc.Warranties, svc.Warranties, logg))
			r.Post("/warranties/{publicId}/transfer", controllers.WarrantyTransfer(svc.Transfers, logg))

			r.Get("/invoices/me", controllers.MyInvoices(svc.Invoices, logg))
			r.Get("/invoices/{invoiceId}", controllers.InvoiceDetail(svc.Invoices, logg))
			r.Get("/invoices/{invoiceId}/pdf", controllers.InvoicePDF(svc.Invoices, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
			r.Use(middleware.Idempotency(store, logg))

			r.Post("/refunds", controllers.AdminRefund(svc.Refunds, logg))
			r.Route("/orders/{orderId}", func(r chi.Router) {
				r.Post("/shipments", controllers.AdminCreateShipment(svc.Shipments, logg))
				r.Post("/deliver", controllers.AdminDeliver(svc.Shipments, logg))
			})
			r.Route("/warranties/{publicId}", func(r chi.Router) {
				r.Post("/suspend", controllers.AdminSuspendWarranty(svc.Warranties, logg))
				r.Post("/unsuspend", controllers.AdminUnsuspendWarranty(svc.Warranties, logg))
				r.Get("/events", controllers.AdminWarrantyEvents(svc.Warranties, logg))
			})
			r.Post("/stock/{stockUnitId}/correct", controllers.AdminCorrectStock(svc.Stock, logg))
		})
	})

	return r
}
