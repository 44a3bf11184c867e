package claims

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/pkg/db/models"
)

// Repository persists claim tokens and guest access tokens. Only digests are stored.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateClaimToken(ctx context.Context, token *models.ClaimToken) error
	ConsumeClaimToken(ctx context.Context, orderID uuid.UUID, digest string, userID uuid.UUID, now time.Time) (int64, error)
	FindClaimToken(ctx context.Context, orderID uuid.UUID, digest string) (*models.ClaimToken, error)
	CreateGuestToken(ctx context.Context, token *models.GuestAccessToken) error
	FindLiveGuestToken(ctx context.Context, orderID uuid.UUID, digest string, now time.Time) (*models.GuestAccessToken, error)
	RevokeGuestTokens(ctx context.Context, orderID uuid.UUID, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateClaimToken(ctx context.Context, token *models.ClaimToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

// ConsumeClaimToken is the single statement that decides a claim: token value,
// order id, unused and unexpired.
func (r *repository) ConsumeClaimToken(ctx context.Context, orderID uuid.UUID, digest string, userID uuid.UUID, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ClaimToken{}).
		Where("order_id = ? AND token_hash = ? AND used_at IS NULL AND expires_at > ?", orderID, digest, now).
		Updates(map[string]any{"used_at": now, "used_by": userID})
	return res.RowsAffected, res.Error
}

func (r *repository) FindClaimToken(ctx context.Context, orderID uuid.UUID, digest string) (*models.ClaimToken, error) {
	var token models.ClaimToken
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND token_hash = ?", orderID, digest).
		First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *repository) CreateGuestToken(ctx context.Context, token *models.GuestAccessToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *repository) FindLiveGuestToken(ctx context.Context, orderID uuid.UUID, digest string, now time.Time) (*models.GuestAccessToken, error) {
	var token models.GuestAccessToken
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND token_hash = ? AND revoked_at IS NULL AND expires_at > ?", orderID, digest, now).
		First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *repository) RevokeGuestTokens(ctx context.Context, orderID uuid.UUID, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.GuestAccessToken{}).
		Where("order_id = ? AND revoked_at IS NULL", orderID).
		Update("revoked_at", now)
	return res.RowsAffected, res.Error
}
