package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClaimToken binds a guest order to a future account. Only the digest is stored.
type ClaimToken struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	TokenHash string     `gorm:"column:token_hash;type:text;not null;uniqueIndex"`
	ExpiresAt time.Time  `gorm:"column:expires_at;not null"`
	UsedAt    *time.Time `gorm:"column:used_at"`
	UsedBy    *uuid.UUID `gorm:"column:used_by;type:uuid"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (c *ClaimToken) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// GuestAccessToken authorizes stateless order lookup for guest buyers.
type GuestAccessToken struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	TokenHash string     `gorm:"column:token_hash;type:text;not null;uniqueIndex"`
	ExpiresAt time.Time  `gorm:"column:expires_at;not null"`
	RevokedAt *time.Time `gorm:"column:revoked_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (g *GuestAccessToken) BeforeCreate(*gorm.DB) error {
	ensureID(&g.ID)
	return nil
}
