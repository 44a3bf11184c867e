package warranties

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/internal/orders"
	"github.com/prepmood/prepmood-backend/internal/orderunits"
	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/logger"
	"github.com/prepmood/prepmood-backend/pkg/outbox"
	"github.com/prepmood/prepmood-backend/pkg/outbox/payloads"
	"github.com/prepmood/prepmood-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns every warranty mutation. Each mutation writes exactly one
// WarrantyEvent in the same transaction; a failed event insert fails the call.
type Service interface {
	IssueForUnits(ctx context.Context, tx *gorm.DB, order *models.Order, units []models.OrderItemUnit) ([]Issued, error)
	AssignOrderOwner(ctx context.Context, tx *gorm.DB, orderID, userID uuid.UUID) ([]models.Warranty, error)
	Revoke(ctx context.Context, tx *gorm.DB, warranty *models.Warranty, actor Actor, refundEventID, reason string) error
	TransferOwner(ctx context.Context, tx *gorm.DB, warranty *models.Warranty, from, to uuid.UUID, transferID string) error
	LockBySerial(ctx context.Context, tx *gorm.DB, serialTokenID uuid.UUID) (*models.Warranty, error)
	LockByPublicID(ctx context.Context, tx *gorm.DB, publicID string) (*models.Warranty, error)
	LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Warranty, error)
	Find(ctx context.Context, tx *gorm.DB, publicID string) (*models.Warranty, error)
	Activate(ctx context.Context, input ActivateInput) (*models.Warranty, error)
	Suspend(ctx context.Context, input AdminStatusInput) (*models.Warranty, error)
	Unsuspend(ctx context.Context, input AdminStatusInput) (*models.Warranty, error)
	Lookup(ctx context.Context, publicID string) (*PublicView, error)
	ListEvents(ctx context.Context, publicID string, params pagination.Params) (*EventPage, error)
}

type ServiceParams struct {
	Tx     txRunner
	Repo   Repository
	Orders orders.Repository
	Units  orderunits.Repository
	Outbox outbox.Emitter
	Logger *logger.Logger
}

type service struct {
	tx       txRunner
	repo     Repository
	orders   orders.Repository
	units    orderunits.Repository
	outbox   outbox.Emitter
	logg     *logger.Logger
	now      func() time.Time
	publicID func() string
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("warranty repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Units == nil {
		return nil, fmt.Errorf("order unit repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		tx:       params.Tx,
		repo:     params.Repo,
		orders:   params.Orders,
		units:    params.Units,
		outbox:   params.Outbox,
		logg:     params.Logger,
		now:      time.Now,
		publicID: func() string { return ulid.Make().String() },
	}, nil
}

// IssueForUnits creates or resurrects the warranty of every unit. The owner
// is the order account, or nobody for guest orders until they are claimed.
func (s *service) IssueForUnits(ctx context.Context, tx *gorm.DB, order *models.Order, units []models.OrderItemUnit) ([]Issued, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	owner := order.UserID
	if order.IsGuest() {
		owner = nil
	}
	target := targetStatus(owner != nil)
	now := s.now().UTC()
	issued := make([]Issued, 0, len(units))

	for _, unit := range units {
		existing, err := repo.LockBySerial(ctx, unit.SerialTokenID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock warranty")
		}

		switch {
		case existing == nil:
			warranty := models.Warranty{
				PublicID:              s.publicID(),
				SerialTokenID:         unit.SerialTokenID,
				SourceOrderItemUnitID: unit.ID,
				OwnerUserID:           owner,
				Status:                target,
			}
			if err := repo.Create(ctx, &warranty); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create warranty")
			}
			after := snapshotOf(&warranty)
			after.OrderID = &order.ID
			if err := s.record(ctx, tx, warranty.ID, enums.WarrantyEventStatusChange, nil, &after, SystemActor(), nil); err != nil {
				return nil, err
			}
			issued = append(issued, Issued{Warranty: warranty, OrderItemUnitID: unit.ID})

		case existing.SourceOrderItemUnitID == unit.ID:
			issued = append(issued, Issued{Warranty: *existing, OrderItemUnitID: unit.ID, Replayed: true})
			continue

		case existing.Status == enums.WarrantyStatusRevoked:
			if err := checkTransition(existing.Status, target); err != nil {
				return nil, err
			}
			before := snapshotOf(existing)
			affected, err := repo.Reissue(ctx, existing.ID, target, owner, unit.ID, now)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reissue warranty")
			}
			if affected != 1 {
				return nil, pkgerrors.New(pkgerrors.CodeConflict, "revoked warranty was claimed by a concurrent resale").
					WithDetails(map[string]any{"warranty_id": existing.ID.String()})
			}
			existing.Status = target
			existing.OwnerUserID = owner
			existing.SourceOrderItemUnitID = unit.ID
			existing.ResaleCount++
			existing.ActivatedAt = nil
			existing.SuspendedAt = nil
			existing.UpdatedAt = now
			after := snapshotOf(existing)
			after.OrderID = &order.ID
			if err := s.record(ctx, tx, existing.ID, enums.WarrantyEventResale, &before, &after, SystemActor(), nil); err != nil {
				return nil, err
			}
			issued = append(issued, Issued{Warranty: *existing, OrderItemUnitID: unit.ID, Resale: true})

		default:
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "serial identity already carries a live warranty").
				WithDetails(map[string]any{"warranty_id": existing.ID.String(), "status": existing.Status})
		}

		last := issued[len(issued)-1]
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWarrantyIssued,
			AggregateType: enums.AggregateWarranty,
			AggregateID:   last.Warranty.ID,
			Actor:         outbox.SystemActor(),
			Data: payloads.WarrantyIssuedEvent{
				WarrantyPublicID: last.Warranty.PublicID,
				OrderID:          order.ID,
				Status:           last.Warranty.Status,
				Resale:           last.Resale,
			},
			OccurredAt: now,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit warranty issued")
		}
	}
	return issued, nil
}

// AssignOrderOwner binds every issued_unassigned warranty of a claimed guest order.
func (s *service) AssignOrderOwner(ctx context.Context, tx *gorm.DB, orderID, userID uuid.UUID) ([]models.Warranty, error) {
	repo := s.repo.WithTx(tx)
	warranties, err := repo.LockUnassignedForOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock unassigned warranties")
	}
	now := s.now().UTC()
	for i := range warranties {
		w := &warranties[i]
		if err := checkTransition(w.Status, enums.WarrantyStatusIssued); err != nil {
			return nil, err
		}
		before := snapshotOf(w)
		affected, err := repo.AssignOwner(ctx, w.ID, userID, now)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign warranty owner")
		}
		if affected != 1 {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "warranty owner changed concurrently")
		}
		owner := userID
		w.Status = enums.WarrantyStatusIssued
		w.OwnerUserID = &owner
		after := snapshotOf(w)
		after.OrderID = &orderID
		if err := s.record(ctx, tx, w.ID, enums.WarrantyEventClaim, &before, &after, UserActor(userID), nil); err != nil {
			return nil, err
		}
	}
	return warranties, nil
}

// Revoke is used by the refund engine only.
func (s *service) Revoke(ctx context.Context, tx *gorm.DB, warranty *models.Warranty, actor Actor, refundEventID, reason string) error {
	if err := checkTransition(warranty.Status, enums.WarrantyStatusRevoked); err != nil {
		return err
	}
	now := s.now().UTC()
	before := snapshotOf(warranty)
	affected, err := s.repo.WithTx(tx).SetStatus(ctx, warranty.ID, warranty.Status, enums.WarrantyStatusRevoked, map[string]any{
		"revoked_at": now,
		"updated_at": now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke warranty")
	}
	if affected != 1 {
		return pkgerrors.New(pkgerrors.CodeConflict, "warranty changed concurrently")
	}
	warranty.Status = enums.WarrantyStatusRevoked
	warranty.RevokedAt = &now
	after := snapshotOf(warranty)
	after.RefundID = refundEventID
	return s.record(ctx, tx, warranty.ID, enums.WarrantyEventStatusChange, &before, &after, actor, optionalString(reason))
}

// TransferOwner moves an active warranty between accounts; the status stays active.
func (s *service) TransferOwner(ctx context.Context, tx *gorm.DB, warranty *models.Warranty, from, to uuid.UUID, transferID string) error {
	if warranty.Status != enums.WarrantyStatusActive {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only active warranties can change owner").
			WithDetails(map[string]any{"current": warranty.Status})
	}
	now := s.now().UTC()
	before := snapshotOf(warranty)
	before.TransferID = transferID
	affected, err := s.repo.WithTx(tx).TransferOwner(ctx, warranty.ID, from, to, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transfer warranty owner")
	}
	if affected != 1 {
		return pkgerrors.New(pkgerrors.CodeConflict, "warranty owner changed concurrently").
			WithDetails(map[string]any{"reason": "OWNER_CHANGED"})
	}
	owner := to
	warranty.OwnerUserID = &owner
	after := snapshotOf(warranty)
	after.TransferID = transferID
	return s.record(ctx, tx, warranty.ID, enums.WarrantyEventOwnershipTransferred, &before, &after, UserActor(to), nil)
}

func (s *service) LockBySerial(ctx context.Context, tx *gorm.DB, serialTokenID uuid.UUID) (*models.Warranty, error) {
	w, err := s.repo.WithTx(tx).LockBySerial(ctx, serialTokenID)
	if err != nil {
		return nil, notFoundOr(err, "lock warranty")
	}
	return w, nil
}

func (s *service) LockByPublicID(ctx context.Context, tx *gorm.DB, publicID string) (*models.Warranty, error) {
	w, err := s.repo.WithTx(tx).LockByPublicID(ctx, publicID)
	if err != nil {
		return nil, notFoundOr(err, "lock warranty")
	}
	return w, nil
}

func (s *service) LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Warranty, error) {
	w, err := s.repo.WithTx(tx).LockByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "lock warranty")
	}
	return w, nil
}

// Find reads without locking; callers re-verify after taking their locks.
func (s *service) Find(ctx context.Context, tx *gorm.DB, publicID string) (*models.Warranty, error) {
	w, err := s.repo.WithTx(tx).FindByPublicID(ctx, strings.TrimSpace(publicID))
	if err != nil {
		return nil, notFoundOr(err, "load warranty")
	}
	return w, nil
}

func (s *service) Lookup(ctx context.Context, publicID string) (*PublicView, error) {
	if publicID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "warranty id required")
	}
	view, err := s.repo.FindPublicView(ctx, publicID)
	if err != nil {
		return nil, notFoundOr(err, "load warranty")
	}
	return view, nil
}

// record writes the audit row paired with a warranty mutation.
func (s *service) record(ctx context.Context, tx *gorm.DB, warrantyID uuid.UUID, eventType enums.WarrantyEventType, before, after *snapshot, actor Actor, reason *string) error {
	oldValue, err := jsonValue(before)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode warranty event old value")
	}
	newValue, err := jsonValue(after)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode warranty event new value")
	}
	event := models.WarrantyEvent{
		WarrantyID:  warrantyID,
		EventType:   eventType,
		OldValue:    oldValue,
		NewValue:    newValue,
		ChangedBy:   actor.Type,
		ChangedByID: actor.ID,
		Reason:      reason,
	}
	if err := s.repo.WithTx(tx).CreateEvent(ctx, &event); err != nil {
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"warranty_id": warrantyID.String(),
				"event_type":  eventType,
			})
			s.logg.Error(logCtx, "warranty event insert failed", err)
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write warranty event")
	}
	return nil
}

func jsonValue(v *snapshot) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func notFoundOr(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "warranty not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
