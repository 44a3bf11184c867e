package shipments

import (
	"time"

	"github.com/google/uuid"

	"github.com/prepmood/prepmood-backend/pkg/enums"
)

type CreateInput struct {
	OrderID        uuid.UUID   `validate:"required"`
	AdminID        uuid.UUID   `validate:"required"`
	CarrierCode    string      `validate:"required,max=32"`
	TrackingNumber string      `validate:"required,max=64"`
	UnitIDs        []uuid.UUID `validate:"required,min=1"`
}

type DeliverInput struct {
	OrderID uuid.UUID   `validate:"required"`
	AdminID uuid.UUID   `validate:"required"`
	UnitIDs []uuid.UUID `validate:"required,min=1"`
}

type Result struct {
	ShipmentID     *uuid.UUID        `json:"shipment_id,omitempty"`
	OrderID        uuid.UUID         `json:"order_id"`
	TrackingNumber string            `json:"tracking_number,omitempty"`
	UnitIDs        []uuid.UUID       `json:"unit_ids"`
	OrderStatus    enums.OrderStatus `json:"order_status"`
	At             time.Time         `json:"at"`
}

// distinct drops repeated ids so the affected-row check compares like with like.
func distinct(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
