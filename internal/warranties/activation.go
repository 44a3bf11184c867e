package warranties

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/outbox"
	"github.com/prepmood/prepmood-backend/pkg/outbox/payloads"
)

// Activate moves an issued warranty to active for its owner. Besides owner
// and state, the originating order must belong to the caller and neither the
// order nor the unit may be refunded, so a refunded unit's label cannot be
// activated by whoever holds it.
func (s *service) Activate(ctx context.Context, input ActivateInput) (*models.Warranty, error) {
	publicID := strings.TrimSpace(input.PublicID)
	if publicID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "warranty id required")
	}
	if !input.Agreed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "warranty terms must be accepted")
	}

	peek, err := s.repo.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, notFoundOr(err, "load warranty")
	}

	var out *models.Warranty
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		unit, err := s.units.WithTx(tx).FindByID(ctx, peek.SourceOrderItemUnitID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load source unit")
		}
		// order row before warranty row
		order, err := s.orders.WithTx(tx).LockByID(ctx, unit.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock source order")
		}
		warranty, err := s.LockByPublicID(ctx, tx, publicID)
		if err != nil {
			return err
		}
		if warranty.SourceOrderItemUnitID != unit.ID {
			return pkgerrors.New(pkgerrors.CodeConflict, "warranty was reissued concurrently")
		}

		if warranty.OwnerUserID == nil || *warranty.OwnerUserID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "warranty belongs to another account")
		}
		if err := checkTransition(warranty.Status, enums.WarrantyStatusActive); err != nil {
			return err
		}
		if order.UserID == nil || *order.UserID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "originating order belongs to another account")
		}
		if order.Status == enums.OrderStatusRefunded {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "originating order was refunded")
		}
		if unit.Status == enums.UnitStatusRefunded {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "originating unit was refunded")
		}

		now := s.now().UTC()
		before := snapshotOf(warranty)
		affected, err := s.repo.WithTx(tx).Activate(ctx, warranty.ID, input.UserID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate warranty")
		}
		if affected != 1 {
			return pkgerrors.New(pkgerrors.CodeConflict, "warranty changed concurrently")
		}
		warranty.Status = enums.WarrantyStatusActive
		warranty.ActivatedAt = &now
		if err := s.record(ctx, tx, warranty.ID, enums.WarrantyEventActivation, &before, ptr(snapshotOf(warranty)), UserActor(input.UserID), nil); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWarrantyActivated,
			AggregateType: enums.AggregateWarranty,
			AggregateID:   warranty.ID,
			Actor:         outbox.UserActor(enums.ActorUser, input.UserID),
			Data: payloads.WarrantyActivatedEvent{
				WarrantyPublicID: warranty.PublicID,
				OwnerUserID:      input.UserID,
				ActivatedAt:      now,
			},
			OccurredAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit warranty activated")
		}
		out = warranty
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"warranty_id": out.ID.String(),
			"user_id":     input.UserID.String(),
		})
		s.logg.Info(logCtx, "warranty activated")
	}
	return out, nil
}

func ptr[T any](v T) *T {
	return &v
}
