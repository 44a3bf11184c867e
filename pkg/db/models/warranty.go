package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// Warranty is the durable authenticity and ownership record of a serialized
// unit. It outlives any single order and is reissued on resale.
type Warranty struct {
	ID                    uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	PublicID              string               `gorm:"column:public_id;type:text;not null;uniqueIndex"`
	SerialTokenID         uuid.UUID            `gorm:"column:serial_token_id;type:uuid;not null;uniqueIndex"`
	SourceOrderItemUnitID uuid.UUID            `gorm:"column:source_order_item_unit_id;type:uuid;not null;index"`
	OwnerUserID           *uuid.UUID           `gorm:"column:owner_user_id;type:uuid;index"`
	Status                enums.WarrantyStatus `gorm:"column:status;type:text;not null"`
	ResaleCount           int                  `gorm:"column:resale_count;not null;default:0"`
	ActivatedAt           *time.Time           `gorm:"column:activated_at"`
	SuspendedAt           *time.Time           `gorm:"column:suspended_at"`
	RevokedAt             *time.Time           `gorm:"column:revoked_at"`
	CreatedAt             time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Warranty) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}

// WarrantyEvent is the append-only audit row paired with every warranty mutation.
type WarrantyEvent struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	WarrantyID  uuid.UUID               `gorm:"column:warranty_id;type:uuid;not null;index:idx_warranty_events_warranty,priority:1"`
	EventType   enums.WarrantyEventType `gorm:"column:event_type;type:text;not null"`
	OldValue    datatypes.JSON          `gorm:"column:old_value"`
	NewValue    datatypes.JSON          `gorm:"column:new_value"`
	ChangedBy   enums.ActorType         `gorm:"column:changed_by;type:text;not null"`
	ChangedByID *uuid.UUID              `gorm:"column:changed_by_id;type:uuid"`
	Reason      *string                 `gorm:"column:reason;type:text"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime;index:idx_warranty_events_warranty,priority:2"`
}

func (e *WarrantyEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// WarrantyTransfer is a time-boxed ownership handoff keyed by a mailed code.
type WarrantyTransfer struct {
	ID           uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	TransferID   string               `gorm:"column:transfer_id;type:text;not null;uniqueIndex"`
	WarrantyID   uuid.UUID            `gorm:"column:warranty_id;type:uuid;not null;index"`
	FromUserID   uuid.UUID            `gorm:"column:from_user_id;type:uuid;not null"`
	ToEmail      string               `gorm:"column:to_email;type:text;not null"`
	ToUserID     *uuid.UUID           `gorm:"column:to_user_id;type:uuid"`
	TransferCode string               `gorm:"column:transfer_code;type:text;not null;index"`
	Status       enums.TransferStatus `gorm:"column:status;type:text;not null;default:'requested'"`
	ExpiresAt    time.Time            `gorm:"column:expires_at;not null"`
	CompletedAt  *time.Time           `gorm:"column:completed_at"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *WarrantyTransfer) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
