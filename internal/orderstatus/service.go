package orderstatus

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/internal/orders"
	"github.com/prepmood/prepmood-backend/internal/orderunits"
	"github.com/prepmood/prepmood-backend/internal/paidevents"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/logger"
	"github.com/prepmood/prepmood-backend/pkg/outbox"
	"github.com/prepmood/prepmood-backend/pkg/outbox/payloads"
)

// Result reports the status before and after a recompute.
type Result struct {
	From    enums.OrderStatus
	To      enums.OrderStatus
	Changed bool
}

// Aggregator recomputes orders.status inside the caller's transaction.
type Aggregator interface {
	Recompute(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (Result, error)
}

type aggregator struct {
	orders orders.Repository
	units  orderunits.Repository
	paid   *paidevents.Repository
	outbox outbox.Emitter
	logg   *logger.Logger
}

func NewAggregator(ordersRepo orders.Repository, units orderunits.Repository, paid *paidevents.Repository, emitter outbox.Emitter, logg *logger.Logger) (Aggregator, error) {
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if units == nil {
		return nil, fmt.Errorf("order unit repository required")
	}
	if paid == nil {
		return nil, fmt.Errorf("paid event repository required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &aggregator{orders: ordersRepo, units: units, paid: paid, outbox: emitter, logg: logg}, nil
}

func (a *aggregator) Recompute(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (Result, error) {
	if tx == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	order, err := a.orders.WithTx(tx).FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	statuses, err := a.units.WithTx(tx).Statuses(ctx, orderID)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load unit statuses")
	}
	hasEvidence, err := a.paid.WithTx(tx).HasEvidence(ctx, orderID)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check payment evidence")
	}

	result := Result{
		From: order.Status,
		To:   Compute(statuses, hasEvidence || order.PaidAt != nil),
	}
	result.Changed = result.From != result.To

	affected, err := a.orders.WithTx(tx).UpdateStatus(ctx, orderID, result.To)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if affected != 1 {
		if a.logg != nil {
			logCtx := a.logg.WithFields(ctx, map[string]any{
				"order_id": orderID.String(),
				"status":   result.To,
				"affected": affected,
			})
			a.logg.Error(logCtx, "order vanished during status aggregation", nil)
		}
		return Result{}, pkgerrors.New(pkgerrors.CodeInternal, "order status update affected no row")
	}

	if result.Changed {
		if err := a.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         outbox.SystemActor(),
			Data: payloads.OrderStatusChangedEvent{
				OrderID: orderID,
				From:    result.From,
				To:      result.To,
			},
		}); err != nil {
			return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order status change")
		}
		if a.logg != nil {
			logCtx := a.logg.WithFields(ctx, map[string]any{
				"order_id": orderID.String(),
				"from":     result.From,
				"to":       result.To,
			})
			a.logg.Info(logCtx, "order status recomputed")
		}
	}
	return result, nil
}
