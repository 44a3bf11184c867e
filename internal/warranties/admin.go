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
	"github.com/prepmood/prepmood-backend/pkg/pagination"
)

func (s *service) Suspend(ctx context.Context, input AdminStatusInput) (*models.Warranty, error) {
	return s.adminTransition(ctx, input, enums.WarrantyStatusSuspended)
}

func (s *service) Unsuspend(ctx context.Context, input AdminStatusInput) (*models.Warranty, error) {
	return s.adminTransition(ctx, input, enums.WarrantyStatusActive)
}

func (s *service) adminTransition(ctx context.Context, input AdminStatusInput, to enums.WarrantyStatus) (*models.Warranty, error) {
	publicID := strings.TrimSpace(input.PublicID)
	reason := strings.TrimSpace(input.Reason)
	if publicID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "warranty id required")
	}
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}

	eventType := enums.WarrantyEventSuspend
	outboxType := enums.EventWarrantySuspended
	if to == enums.WarrantyStatusActive {
		eventType = enums.WarrantyEventUnsuspend
		outboxType = enums.EventWarrantyUnsuspended
	}

	var out *models.Warranty
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		warranty, err := s.LockByPublicID(ctx, tx, publicID)
		if err != nil {
			return err
		}
		from := warranty.Status
		// issued -> active belongs to owner activation, not to unsuspend
		if to == enums.WarrantyStatusActive && from != enums.WarrantyStatusSuspended {
			return transitionError(from, to)
		}
		if err := checkTransition(from, to); err != nil {
			return err
		}

		now := s.now().UTC()
		extra := map[string]any{"updated_at": now}
		if to == enums.WarrantyStatusSuspended {
			extra["suspended_at"] = now
		} else {
			extra["suspended_at"] = nil
		}
		before := snapshotOf(warranty)
		affected, err := s.repo.WithTx(tx).SetStatus(ctx, warranty.ID, from, to, extra)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update warranty status")
		}
		if affected != 1 {
			return pkgerrors.New(pkgerrors.CodeConflict, "warranty changed concurrently")
		}
		warranty.Status = to
		if to == enums.WarrantyStatusSuspended {
			warranty.SuspendedAt = &now
		} else {
			warranty.SuspendedAt = nil
		}
		if err := s.record(ctx, tx, warranty.ID, eventType, &before, ptr(snapshotOf(warranty)), AdminActor(input.AdminID), &reason); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     outboxType,
			AggregateType: enums.AggregateWarranty,
			AggregateID:   warranty.ID,
			Actor:         outbox.UserActor(enums.ActorAdmin, input.AdminID),
			Data: payloads.WarrantyStatusEvent{
				WarrantyPublicID: warranty.PublicID,
				From:             from,
				To:               to,
				Reason:           reason,
			},
			OccurredAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit warranty status event")
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
			"admin_id":    input.AdminID.String(),
			"status":      to,
		})
		s.logg.Info(logCtx, "warranty status changed by admin")
	}
	return out, nil
}

// ListEvents pages through the audit log, newest first.
func (s *service) ListEvents(ctx context.Context, publicID string, params pagination.Params) (*EventPage, error) {
	warranty, err := s.repo.FindByPublicID(ctx, strings.TrimSpace(publicID))
	if err != nil {
		return nil, notFoundOr(err, "load warranty")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListEvents(ctx, warranty.ID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list warranty events")
	}

	page := &EventPage{Events: make([]EventView, 0, len(rows))}
	if len(rows) > limit {
		last := rows[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		rows = rows[:limit]
	}
	for _, row := range rows {
		page.Events = append(page.Events, EventView{
			ID:          row.ID,
			EventType:   row.EventType,
			OldValue:    []byte(row.OldValue),
			NewValue:    []byte(row.NewValue),
			ChangedBy:   row.ChangedBy,
			ChangedByID: row.ChangedByID,
			Reason:      row.Reason,
			CreatedAt:   row.CreatedAt,
		})
	}
	return page, nil
}
