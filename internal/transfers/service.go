package transfers

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/internal/notifications"
	"github.com/prepmood/prepmood-backend/internal/users"
	"github.com/prepmood/prepmood-backend/internal/warranties"
	"github.com/prepmood/prepmood-backend/pkg/config"
	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/logger"
	"github.com/prepmood/prepmood-backend/pkg/outbox"
	"github.com/prepmood/prepmood-backend/pkg/outbox/payloads"
	"github.com/prepmood/prepmood-backend/pkg/retry"
	"github.com/prepmood/prepmood-backend/pkg/security"
)

// CodeLength is the length of the code mailed to the recipient.
const CodeLength = 7

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type userLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Service runs peer-to-peer handoffs of active warranties.
type Service interface {
	Request(ctx context.Context, input RequestInput) (*RequestResult, error)
	Accept(ctx context.Context, input AcceptInput) (*AcceptResult, error)
	ExpireStale(ctx context.Context) (int64, error)
}

type Params struct {
	Tx         txRunner
	Repo       Repository
	Warranties warranties.Service
	Users      userLookup
	Outbox     outbox.Emitter
	Notifier   notifications.Notifier
	Logger     *logger.Logger
	Config     config.FulfillmentConfig
}

type service struct {
	tx         txRunner
	repo       Repository
	warranties warranties.Service
	users      userLookup
	outbox     outbox.Emitter
	notifier   notifications.Notifier
	logg       *logger.Logger
	ttl        time.Duration
	validate   *validator.Validate
	codePolicy retry.Policy
	now        func() time.Time
	newID      func() string
}

var _ userLookup = (*users.Repository)(nil)

func NewService(params Params) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("transfer repository required")
	}
	if params.Warranties == nil {
		return nil, fmt.Errorf("warranty service required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user lookup required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	ttl := params.Config.TransferTTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &service{
		tx:         params.Tx,
		repo:       params.Repo,
		warranties: params.Warranties,
		users:      params.Users,
		outbox:     params.Outbox,
		notifier:   params.Notifier,
		logg:       params.Logger,
		ttl:        ttl,
		validate:   validator.New(),
		codePolicy: retry.DefaultPolicy(),
		now:        time.Now,
		newID:      func() string { return ulid.Make().String() },
	}, nil
}

func (s *service) Request(ctx context.Context, input RequestInput) (*RequestResult, error) {
	toEmail := strings.TrimSpace(input.ToEmail)
	if err := s.validate.Var(toEmail, "required,email,max=255"); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient email is invalid").
			WithDetails(map[string]any{"field": "to_email"})
	}
	publicID := strings.TrimSpace(input.PublicID)
	if publicID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "warranty id required")
	}
	sender, err := s.users.FindByID(ctx, input.UserID)
	if err != nil {
		return nil, userError(err)
	}
	if strings.EqualFold(sender.Email, toEmail) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot transfer a warranty to yourself")
	}

	var (
		transfer models.WarrantyTransfer
		code     string
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := s.now().UTC()
		warranty, err := s.warranties.LockByPublicID(ctx, tx, publicID)
		if err != nil {
			return err
		}
		if warranty.OwnerUserID == nil || *warranty.OwnerUserID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the warranty owner can transfer it")
		}
		if warranty.Status != enums.WarrantyStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only active warranties can be transferred").
				WithDetails(map[string]any{"current": warranty.Status})
		}

		repo := s.repo.WithTx(tx)
		live, err := repo.HasLive(ctx, warranty.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check live transfers")
		}
		if live {
			return pkgerrors.New(pkgerrors.CodeConflict, "a transfer is already pending for this warranty").
				WithDetails(map[string]any{"reason": "TRANSFER_ALREADY_EXISTS"})
		}

		code, err = retry.Unique(ctx, s.codePolicy,
			func() (string, error) { return security.RandomCode(CodeLength) },
			func(ctx context.Context, candidate string) (bool, error) {
				return repo.LiveCodeExists(ctx, candidate, now)
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "allocate transfer code")
		}

		transfer = models.WarrantyTransfer{
			TransferID:   s.newID(),
			WarrantyID:   warranty.ID,
			FromUserID:   input.UserID,
			ToEmail:      toEmail,
			TransferCode: code,
			Status:       enums.TransferStatusRequested,
			ExpiresAt:    now.Add(s.ttl),
		}
		if err := repo.Create(ctx, &transfer); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transfer")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		notice := notifications.TransferRequest{
			TransferID:       transfer.TransferID,
			WarrantyPublicID: publicID,
			ToEmail:          toEmail,
			Code:             code,
			ExpiresAt:        transfer.ExpiresAt,
		}
		if err := s.notifier.TransferRequested(ctx, notice); err != nil && s.logg != nil {
			s.logg.Error(s.logg.WithFields(ctx, map[string]any{
				"transfer_id": transfer.TransferID,
			}), "transfer notice failed; transfer kept", err)
		}
	}

	return &RequestResult{TransferID: transfer.TransferID, ToEmail: toEmail, ExpiresAt: transfer.ExpiresAt}, nil
}

func (s *service) Accept(ctx context.Context, input AcceptInput) (*AcceptResult, error) {
	transferID := strings.TrimSpace(input.TransferID)
	if transferID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer id required")
	}
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if len(code) != CodeLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer code must be 7 characters").
			WithDetails(map[string]any{"reason": "INVALID_TRANSFER_CODE"})
	}
	recipient, err := s.users.FindByID(ctx, input.UserID)
	if err != nil {
		return nil, userError(err)
	}

	var result *AcceptResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := s.now().UTC()
		repo := s.repo.WithTx(tx)
		transfer, err := repo.LockLive(ctx, transferID, now)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "transfer not found or no longer pending").
				WithDetails(map[string]any{"reason": "INVALID_TRANSFER_REQUEST"})
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock transfer")
		}
		if subtle.ConstantTimeCompare([]byte(transfer.TransferCode), []byte(code)) != 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "transfer code does not match").
				WithDetails(map[string]any{"reason": "INVALID_TRANSFER_CODE"})
		}
		if recipient.Email != transfer.ToEmail {
			return pkgerrors.New(pkgerrors.CodeForbidden, "transfer was addressed to another email")
		}
		if transfer.FromUserID == input.UserID {
			return pkgerrors.New(pkgerrors.CodeValidation, "cannot accept your own transfer")
		}

		warranty, err := s.warranties.LockByID(ctx, tx, transfer.WarrantyID)
		if err != nil {
			return err
		}
		if warranty.OwnerUserID == nil || *warranty.OwnerUserID != transfer.FromUserID {
			return pkgerrors.New(pkgerrors.CodeConflict, "warranty owner changed since the transfer was requested").
				WithDetails(map[string]any{"reason": "OWNER_CHANGED"})
		}
		if err := s.warranties.TransferOwner(ctx, tx, warranty, transfer.FromUserID, input.UserID, transfer.TransferID); err != nil {
			return err
		}

		affected, err := repo.Complete(ctx, transfer.ID, input.UserID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete transfer")
		}
		if affected != 1 {
			return pkgerrors.New(pkgerrors.CodeConflict, "transfer changed concurrently")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWarrantyTransferred,
			AggregateType: enums.AggregateWarranty,
			AggregateID:   warranty.ID,
			Actor:         outbox.UserActor(enums.ActorUser, input.UserID),
			Data: payloads.WarrantyTransferredEvent{
				WarrantyPublicID: warranty.PublicID,
				TransferID:       transfer.TransferID,
				FromUserID:       transfer.FromUserID,
				ToUserID:         input.UserID,
				CompletedAt:      now,
			},
			OccurredAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit warranty transferred")
		}

		result = &AcceptResult{TransferID: transfer.TransferID, WarrantyPublicID: warranty.PublicID, CompletedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExpireStale is driven by the cron worker.
func (s *service) ExpireStale(ctx context.Context) (int64, error) {
	expired, err := s.repo.ExpireStale(ctx, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire transfers")
	}
	if expired > 0 && s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "expired", expired), "stale transfers expired")
	}
	return expired, nil
}

func userError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "account not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
}
