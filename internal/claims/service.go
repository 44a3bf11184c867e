package claims

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/internal/orders"
	"github.com/prepmood/prepmood-backend/internal/warranties"
	"github.com/prepmood/prepmood-backend/pkg/config"
	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/logger"
	"github.com/prepmood/prepmood-backend/pkg/metrics"
	"github.com/prepmood/prepmood-backend/pkg/outbox"
	"github.com/prepmood/prepmood-backend/pkg/outbox/payloads"
	"github.com/prepmood/prepmood-backend/pkg/security"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// FailureCounter keeps the best-effort failed-claim tally.
type FailureCounter interface {
	CountClaimFailure(ctx context.Context, orderID, subject string, window time.Duration) (int64, error)
}

// Service binds guest orders to accounts and guards guest order lookups.
type Service interface {
	IssueGuestAccessToken(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*IssuedToken, error)
	VerifyGuestAccess(ctx context.Context, orderID uuid.UUID, token string) error
	IssueClaimToken(ctx context.Context, orderID uuid.UUID, guestToken string) (*IssuedToken, error)
	Claim(ctx context.Context, input ClaimInput) (*ClaimResult, error)
}

type Params struct {
	Tx         txRunner
	Repo       Repository
	Orders     orders.Repository
	Warranties warranties.Service
	Outbox     outbox.Emitter
	Counter    FailureCounter
	Metrics    *metrics.FulfillmentMetrics
	Logger     *logger.Logger
	Config     config.FulfillmentConfig
}

type service struct {
	tx         txRunner
	repo       Repository
	orders     orders.Repository
	warranties warranties.Service
	outbox     outbox.Emitter
	counter    FailureCounter
	metrics    *metrics.FulfillmentMetrics
	logg       *logger.Logger
	cfg        config.FulfillmentConfig
	now        func() time.Time
	newToken   func() (string, string, error)
}

func NewService(params Params) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("claims repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Warranties == nil {
		return nil, fmt.Errorf("warranty service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	cfg := params.Config
	if cfg.ClaimTokenTTL <= 0 {
		cfg.ClaimTokenTTL = 30 * time.Minute
	}
	if cfg.GuestAccessTokenTTL <= 0 {
		cfg.GuestAccessTokenTTL = 7 * 24 * time.Hour
	}
	if cfg.ClaimFailureWindow <= 0 {
		cfg.ClaimFailureWindow = time.Hour
	}
	return &service{
		tx:         params.Tx,
		repo:       params.Repo,
		orders:     params.Orders,
		warranties: params.Warranties,
		outbox:     params.Outbox,
		counter:    params.Counter,
		metrics:    params.Metrics,
		logg:       params.Logger,
		cfg:        cfg,
		now:        time.Now,
		newToken:   security.NewOpaqueToken,
	}, nil
}

// IssueGuestAccessToken runs inside the fulfillment transaction of a guest order.
func (s *service) IssueGuestAccessToken(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*IssuedToken, error) {
	token, digest, err := s.newToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate guest access token")
	}
	expiresAt := s.now().UTC().Add(s.cfg.GuestAccessTokenTTL)
	row := models.GuestAccessToken{OrderID: orderID, TokenHash: digest, ExpiresAt: expiresAt}
	if err := s.repo.WithTx(tx).CreateGuestToken(ctx, &row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store guest access token")
	}
	return &IssuedToken{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *service) VerifyGuestAccess(ctx context.Context, orderID uuid.UUID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "guest access token required")
	}
	_, err := s.repo.FindLiveGuestToken(ctx, orderID, security.HashToken(token), s.now().UTC())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "guest access token invalid or expired")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify guest access token")
	}
	return nil
}

// IssueClaimToken requires a live guest access token for the order, so only
// the buyer holding the lookup link can start a claim.
func (s *service) IssueClaimToken(ctx context.Context, orderID uuid.UUID, guestToken string) (*IssuedToken, error) {
	if err := s.VerifyGuestAccess(ctx, orderID, guestToken); err != nil {
		return nil, err
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !order.IsGuest() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already bound to an account")
	}

	token, digest, err := s.newToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate claim token")
	}
	expiresAt := s.now().UTC().Add(s.cfg.ClaimTokenTTL)
	row := models.ClaimToken{OrderID: orderID, TokenHash: digest, ExpiresAt: expiresAt}
	if err := s.repo.CreateClaimToken(ctx, &row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store claim token")
	}
	return &IssuedToken{Token: token, ExpiresAt: expiresAt}, nil
}

// Claim consumes the token and binds the order and its unassigned warranties
// to the caller in one transaction.
func (s *service) Claim(ctx context.Context, input ClaimInput) (*ClaimResult, error) {
	token := strings.TrimSpace(input.Token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "claim token required")
	}
	if input.OrderID == uuid.Nil || input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and user id required")
	}
	digest := security.HashToken(token)

	var result *ClaimResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := s.now().UTC()
		repo := s.repo.WithTx(tx)

		affected, err := repo.ConsumeClaimToken(ctx, input.OrderID, digest, input.UserID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume claim token")
		}
		if affected != 1 {
			return s.rejection(ctx, repo, input.OrderID, digest, now)
		}

		bound, err := s.orders.WithTx(tx).AssignOwner(ctx, input.OrderID, input.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign order owner")
		}
		if bound != 1 {
			return pkgerrors.New(pkgerrors.CodeConflict, "order is already bound to an account")
		}

		assigned, err := s.warranties.AssignOrderOwner(ctx, tx, input.OrderID, input.UserID)
		if err != nil {
			return err
		}
		revoked, err := repo.RevokeGuestTokens(ctx, input.OrderID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke guest access tokens")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderClaimed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   input.OrderID,
			Actor:         outbox.UserActor(enums.ActorUser, input.UserID),
			Data: payloads.OrderClaimedEvent{
				OrderID:          input.OrderID,
				UserID:           input.UserID,
				WarrantiesIssued: len(assigned),
				ClaimedAt:        now,
			},
			OccurredAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order claimed")
		}

		result = &ClaimResult{
			OrderID:            input.OrderID,
			UserID:             input.UserID,
			WarrantiesAssigned: len(assigned),
			GuestTokensRevoked: revoked,
			ClaimedAt:          now,
		}
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, input, err)
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id":            input.OrderID.String(),
			"user_id":             input.UserID.String(),
			"warranties_assigned": result.WarrantiesAssigned,
		}), "guest order claimed")
	}
	return result, nil
}

// rejection classifies a token that did not match the conditional update.
func (s *service) rejection(ctx context.Context, repo Repository, orderID uuid.UUID, digest string, now time.Time) error {
	token, err := repo.FindClaimToken(ctx, orderID, digest)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "claim token invalid")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load claim token")
	}
	if token.UsedAt != nil {
		return pkgerrors.New(pkgerrors.CodeConflict, "claim token already used")
	}
	if !token.ExpiresAt.After(now) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "claim token expired")
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "claim token changed concurrently")
}

func (s *service) recordFailure(ctx context.Context, input ClaimInput, cause error) {
	s.metrics.IncClaimFailure()
	fields := map[string]any{
		"order_id": input.OrderID.String(),
		"user_id":  input.UserID.String(),
	}
	if s.counter != nil {
		count, err := s.counter.CountClaimFailure(ctx, input.OrderID.String(), input.UserID.String(), s.cfg.ClaimFailureWindow)
		if err != nil {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithFields(ctx, fields), "claim failure counter unavailable")
			}
		} else {
			fields["failures"] = count
			if s.cfg.ClaimFailureWarnAt > 0 && count >= s.cfg.ClaimFailureWarnAt && s.logg != nil {
				s.logg.Warn(s.logg.WithFields(ctx, fields), "repeated claim failures")
			}
		}
	}
	if s.logg != nil {
		s.logg.Error(s.logg.WithFields(ctx, fields), "claim rejected", cause)
	}
}
