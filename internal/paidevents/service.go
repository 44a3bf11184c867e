package paidevents

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/logger"
)

const maxLastErrorLen = 1024

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service records payment evidence and tracks processing of each event.
type Service interface {
	Record(ctx context.Context, input RecordInput) (*Recorded, error)
	MarkProcessing(ctx context.Context, paidEventID uuid.UUID) error
	MarkSuccess(ctx context.Context, paidEventID uuid.UUID) error
	MarkFailed(ctx context.Context, paidEventID uuid.UUID, cause error) error
	ListRecoverable(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]models.PaidEvent, error)
}

type service struct {
	tx   txRunner
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(tx txRunner, repo *Repository, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("paid event repository required")
	}
	return &service{tx: tx, repo: repo, logg: logg, now: time.Now}, nil
}

// Record stores the evidence in its own transaction so it is committed before
// any fulfillment work starts. A repeated (order, payment key) returns the
// first row.
func (s *service) Record(ctx context.Context, input RecordInput) (*Recorded, error) {
	if err := validateRecordInput(input); err != nil {
		return nil, err
	}
	confirmedAt := input.ConfirmedAt
	if confirmedAt.IsZero() {
		confirmedAt = s.now()
	}

	var out Recorded
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		event := models.PaidEvent{
			OrderID:     input.OrderID,
			PaymentKey:  strings.TrimSpace(input.PaymentKey),
			Amount:      input.Amount,
			Currency:    input.Currency,
			EventSource: input.Source,
			ConfirmedAt: confirmedAt.UTC(),
		}
		if len(input.RawPayload) > 0 {
			event.RawPayload = datatypes.JSON(input.RawPayload)
		}
		created, err := repo.InsertIfAbsent(ctx, &event)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record paid event")
		}
		if !created {
			existing, err := repo.FindByOrderAndPaymentKey(ctx, event.OrderID, event.PaymentKey)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load paid event")
			}
			event = *existing
		}
		if err := repo.EnsureProcessing(ctx, event.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "init processing record")
		}
		processing, err := repo.FindProcessing(ctx, event.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load processing record")
		}
		out = Recorded{Event: event, Processing: *processing, Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":      out.Event.OrderID.String(),
			"paid_event_id": out.Event.ID.String(),
			"payment_key":   maskPaymentKey(out.Event.PaymentKey),
			"source":        out.Event.EventSource,
			"created":       out.Created,
		})
		s.logg.Info(logCtx, "paid event recorded")
	}
	return &out, nil
}

func (s *service) MarkProcessing(ctx context.Context, paidEventID uuid.UUID) error {
	return s.update(ctx, paidEventID, enums.ProcessingStatusProcessing, nil)
}

func (s *service) MarkSuccess(ctx context.Context, paidEventID uuid.UUID) error {
	return s.update(ctx, paidEventID, enums.ProcessingStatusSuccess, nil)
}

func (s *service) MarkFailed(ctx context.Context, paidEventID uuid.UUID, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	msg = truncateError(msg, maxLastErrorLen)
	return s.update(ctx, paidEventID, enums.ProcessingStatusFailed, &msg)
}

// truncateError cuts msg to at most limit bytes without splitting a rune.
func truncateError(msg string, limit int) string {
	if len(msg) <= limit {
		return msg
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

func (s *service) ListRecoverable(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]models.PaidEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListRecoverable(ctx, maxAttempts, staleBefore, limit)
}

func (s *service) update(ctx context.Context, paidEventID uuid.UUID, status enums.ProcessingStatus, lastError *string) error {
	affected, err := s.repo.UpdateProcessing(ctx, paidEventID, status, lastError, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update processing record")
	}
	if affected != 1 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "processing record not found")
	}
	return nil
}

func validateRecordInput(input RecordInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if strings.TrimSpace(input.PaymentKey) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment key required")
	}
	if input.Amount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be non-negative")
	}
	if !input.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}
	if !input.Source.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown event source")
	}
	return nil
}

// maskPaymentKey keeps enough of the key to correlate logs with the gateway.
func maskPaymentKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}
