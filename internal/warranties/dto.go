package warranties

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// Issued is the outcome of issuing one warranty for one order item unit.
type Issued struct {
	Warranty        models.Warranty
	OrderItemUnitID uuid.UUID
	Resale          bool
	// Replayed is set when the warranty already pointed at this unit.
	Replayed bool
}

// Actor identifies who changes a warranty in the audit log.
type Actor struct {
	Type enums.ActorType
	ID   *uuid.UUID
}

// SystemActor is the pipeline and background jobs.
func SystemActor() Actor {
	return Actor{Type: enums.ActorSystem}
}

func UserActor(id uuid.UUID) Actor {
	return Actor{Type: enums.ActorUser, ID: &id}
}

func AdminActor(id uuid.UUID) Actor {
	return Actor{Type: enums.ActorAdmin, ID: &id}
}

type ActivateInput struct {
	PublicID string
	UserID   uuid.UUID
	Agreed   bool
}

// AdminStatusInput drives suspend and unsuspend.
type AdminStatusInput struct {
	PublicID string
	AdminID  uuid.UUID
	Reason   string
}

// PublicView is what anyone holding a warranty identifier may see.
type PublicView struct {
	PublicID    string               `json:"public_id"`
	Status      enums.WarrantyStatus `json:"status"`
	ProductID   string               `json:"product_id"`
	ProductName string               `json:"product_name"`
	Size        *string              `json:"size,omitempty"`
	Color       *string              `json:"color,omitempty"`
	IssuedAt    time.Time            `json:"issued_at"`
	ActivatedAt *time.Time           `json:"activated_at,omitempty"`
	Assigned    bool                 `json:"assigned"`
}

type EventView struct {
	ID          uuid.UUID               `json:"id"`
	EventType   enums.WarrantyEventType `json:"event_type"`
	OldValue    json.RawMessage         `json:"old_value,omitempty"`
	NewValue    json.RawMessage         `json:"new_value,omitempty"`
	ChangedBy   enums.ActorType         `json:"changed_by"`
	ChangedByID *uuid.UUID              `json:"changed_by_id,omitempty"`
	Reason      *string                 `json:"reason,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

type EventPage struct {
	Events     []EventView `json:"events"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// snapshot is the old/new value stored with every warranty event.
type snapshot struct {
	Status      enums.WarrantyStatus `json:"status,omitempty"`
	OwnerUserID *uuid.UUID           `json:"owner_user_id,omitempty"`
	ResaleCount *int                 `json:"resale_count,omitempty"`
	ActivatedAt *time.Time           `json:"activated_at,omitempty"`
	OrderID     *uuid.UUID           `json:"order_id,omitempty"`
	TransferID  string               `json:"transfer_id,omitempty"`
	RefundID    string               `json:"refund_event_id,omitempty"`
}

func snapshotOf(w *models.Warranty) snapshot {
	count := w.ResaleCount
	return snapshot{
		Status:      w.Status,
		OwnerUserID: w.OwnerUserID,
		ResaleCount: &count,
		ActivatedAt: w.ActivatedAt,
	}
}
