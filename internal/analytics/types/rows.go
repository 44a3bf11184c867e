package types

import (
	"math/big"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// FulfillmentEventRow mirrors the fulfillment_events BigQuery schema: one row
// per domain event, with the columns dashboards filter on lifted out of the payload.
type FulfillmentEventRow struct {
	EventID          string             `bigquery:"event_id"`
	EventType        string             `bigquery:"event_type"`
	AggregateType    string             `bigquery:"aggregate_type"`
	AggregateID      string             `bigquery:"aggregate_id"`
	ActorType        *string            `bigquery:"actor_type"`
	OccurredAt       time.Time          `bigquery:"occurred_at"`
	OrderID          *string            `bigquery:"order_id"`
	WarrantyPublicID *string            `bigquery:"warranty_public_id"`
	DocumentNumber   *string            `bigquery:"document_number"`
	Status           *string            `bigquery:"status"`
	Amount           *big.Rat           `bigquery:"amount"`
	Currency         *string            `bigquery:"currency"`
	Quantity         *int64             `bigquery:"quantity"`
	Payload          cbigquery.NullJSON `bigquery:"payload"`
}
