package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prepmood/prepmood-backend/internal/analytics/types"
	"github.com/prepmood/prepmood-backend/internal/analytics/writer"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	"github.com/prepmood/prepmood-backend/pkg/logger"
	"github.com/prepmood/prepmood-backend/pkg/outbox/payloads"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers fact rows built by the router.
type Writer interface {
	InsertFulfillment(ctx context.Context, row types.FulfillmentEventRow) error
}

// enrichFunc copies the event specific columns from a decoded payload.
type enrichFunc func(row *types.FulfillmentEventRow, payload any) error

type route struct {
	factory func() any
	enrich  enrichFunc
}

// Router turns envelopes into fulfillment fact rows, one per event.
type Router struct {
	writer Writer
	routes map[enums.OutboxEventType]route
	logg   *logger.Logger
}

func NewRouter(w Writer, logg *logger.Logger) (*Router, error) {
	if w == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Router{
		writer: w,
		logg:   logg,
		routes: map[enums.OutboxEventType]route{
			enums.EventOrderPaid:           {factory: func() any { return &payloads.OrderPaidEvent{} }, enrich: enrichOrderPaid},
			enums.EventOrderStatusChanged:  {factory: func() any { return &payloads.OrderStatusChangedEvent{} }, enrich: enrichStatusChanged},
			enums.EventOrderClaimed:        {factory: func() any { return &payloads.OrderClaimedEvent{} }, enrich: enrichOrderClaimed},
			enums.EventWarrantyIssued:      {factory: func() any { return &payloads.WarrantyIssuedEvent{} }, enrich: enrichWarrantyIssued},
			enums.EventWarrantyActivated:   {factory: func() any { return &payloads.WarrantyActivatedEvent{} }, enrich: enrichWarrantyActivated},
			enums.EventWarrantyTransferred: {factory: func() any { return &payloads.WarrantyTransferredEvent{} }, enrich: enrichWarrantyTransferred},
			enums.EventWarrantySuspended:   {factory: func() any { return &payloads.WarrantyStatusEvent{} }, enrich: enrichWarrantyStatus},
			enums.EventWarrantyUnsuspended: {factory: func() any { return &payloads.WarrantyStatusEvent{} }, enrich: enrichWarrantyStatus},
			enums.EventInvoiceIssued:       {factory: func() any { return &payloads.InvoiceIssuedEvent{} }, enrich: enrichInvoiceIssued},
			enums.EventRefundProcessed:     {factory: func() any { return &payloads.RefundProcessedEvent{} }, enrich: enrichRefundProcessed},
			enums.EventStockShortage:       {factory: func() any { return &payloads.StockShortageEvent{} }, enrich: enrichStockShortage},
		},
	}, nil
}

// Handle decodes the payload of a supported event and writes its fact row.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	rt, ok := r.routes[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	payload := rt.factory()
	if err := json.Unmarshal(envelope.Payload, payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}

	row, err := baseRow(envelope)
	if err != nil {
		return err
	}
	if err := rt.enrich(&row, payload); err != nil {
		return err
	}

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"event_type": envelope.EventType,
		"event_id":   envelope.EventID,
	})
	if err := r.writer.InsertFulfillment(logCtx, row); err != nil {
		r.logg.Error(logCtx, "insert fulfillment row", err)
		return err
	}
	return nil
}

func baseRow(envelope types.Envelope) (types.FulfillmentEventRow, error) {
	payloadJSON, err := writer.EncodeJSON(envelope.Payload)
	if err != nil {
		return types.FulfillmentEventRow{}, err
	}
	return types.FulfillmentEventRow{
		EventID:       envelope.EventID,
		EventType:     string(envelope.EventType),
		AggregateType: string(envelope.AggregateType),
		AggregateID:   envelope.AggregateID,
		ActorType:     stringPtr(envelope.ActorType),
		OccurredAt:    envelope.OccurredAt.UTC(),
		Payload:       payloadJSON,
	}, nil
}
