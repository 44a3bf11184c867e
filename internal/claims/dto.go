package claims

import (
	"time"

	"github.com/google/uuid"
)

// IssuedToken carries a bearer token exactly once; only its digest is stored.
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ClaimInput struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
	Token   string
}

type ClaimResult struct {
	OrderID            uuid.UUID `json:"order_id"`
	UserID             uuid.UUID `json:"user_id"`
	WarrantiesAssigned int       `json:"warranties_assigned"`
	GuestTokensRevoked int64     `json:"guest_tokens_revoked"`
	ClaimedAt          time.Time `json:"claimed_at"`
}
