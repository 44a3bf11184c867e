package orderunits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/internal/stock"
	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/logger"
)

// Service turns reservations into order item units.
type Service interface {
	// Materialize creates one reserved unit per reservation. Sequence numbers
	// restart at 1 for every order item, so a replay maps onto the same rows.
	Materialize(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reservations []stock.Reservation) ([]models.OrderItemUnit, error)
	ListByOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.OrderItemUnit, error)
	Find(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.OrderItemUnit, error)
	Lock(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.OrderItemUnit, error)
	MarkRefunded(ctx context.Context, tx *gorm.DB, unit *models.OrderItemUnit) error
}

type service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order unit repository required")
	}
	return &service{repo: repo, logg: logg, now: time.Now}, nil
}

func (s *service) Materialize(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reservations []stock.Reservation) ([]models.OrderItemUnit, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	seqs := make(map[uuid.UUID]int)
	units := make([]models.OrderItemUnit, 0, len(reservations))
	reused := 0

	for _, reservation := range reservations {
		seqs[reservation.OrderItemID]++
		unit := models.OrderItemUnit{
			OrderID:       orderID,
			OrderItemID:   reservation.OrderItemID,
			UnitSeq:       seqs[reservation.OrderItemID],
			StockUnitID:   reservation.StockUnit.ID,
			SerialTokenID: reservation.StockUnit.SerialTokenID,
			Status:        enums.UnitStatusReserved,
		}
		created, err := repo.InsertIfAbsent(ctx, &unit)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order item unit")
		}
		if !created {
			existing, err := repo.FindByItemSeq(ctx, unit.OrderItemID, unit.UnitSeq)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load existing order item unit")
			}
			unit = *existing
			reused++
		}
		units = append(units, unit)
	}

	if reused > 0 && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": orderID.String(), "reused": reused})
		s.logg.Warn(logCtx, "order item units already existed")
	}
	return units, nil
}

func (s *service) ListByOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.OrderItemUnit, error) {
	units, err := s.repo.WithTx(tx).ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order item units")
	}
	return units, nil
}

// Find reads a unit without locking it.
func (s *service) Find(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.OrderItemUnit, error) {
	unit, err := s.repo.WithTx(tx).FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item unit not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order item unit")
	}
	return unit, nil
}

func (s *service) Lock(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.OrderItemUnit, error) {
	unit, err := s.repo.WithTx(tx).LockByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item unit not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order item unit")
	}
	return unit, nil
}

func (s *service) MarkRefunded(ctx context.Context, tx *gorm.DB, unit *models.OrderItemUnit) error {
	now := s.now().UTC()
	affected, err := s.repo.WithTx(tx).MarkRefunded(ctx, unit.ID, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund order item unit")
	}
	if affected != 1 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order item unit already refunded")
	}
	unit.Status = enums.UnitStatusRefunded
	unit.RefundedAt = &now
	return nil
}
