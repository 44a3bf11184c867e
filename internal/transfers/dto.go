package transfers

import (
	"time"

	"github.com/google/uuid"
)

type RequestInput struct {
	PublicID string
	UserID   uuid.UUID
	ToEmail  string
}

// RequestResult never carries the code; it only travels in the notice to the recipient.
type RequestResult struct {
	TransferID string    `json:"transfer_id"`
	ToEmail    string    `json:"to_email"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type AcceptInput struct {
	TransferID string
	Code       string
	UserID     uuid.UUID
}

type AcceptResult struct {
	TransferID       string    `json:"transfer_id"`
	WarrantyPublicID string    `json:"warranty_public_id"`
	CompletedAt      time.Time `json:"completed_at"`
}
