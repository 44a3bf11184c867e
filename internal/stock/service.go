package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service reserves, releases and corrects physical inventory.
type Service interface {
	// Reserve runs inside the caller's transaction and reserves every line or none.
	Reserve(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, lines []Line) ([]Reservation, error)
	// ReturnUnit puts a reserved unit back on sale. Used by refunds.
	ReturnUnit(ctx context.Context, tx *gorm.DB, stockUnitID, orderID uuid.UUID) error
	LockUnit(ctx context.Context, tx *gorm.DB, stockUnitID uuid.UUID) (*models.StockUnit, error)
	RecordShortage(ctx context.Context, paidEventID, orderID uuid.UUID, shortages []Shortage) error
	ReleaseOrphaned(ctx context.Context, orderID uuid.UUID) (int64, error)
	ListOrphanedOrders(ctx context.Context, reservedBefore time.Time, limit int) ([]uuid.UUID, error)
	Correct(ctx context.Context, input CorrectionInput) (*models.StockUnit, error)
}

type service struct {
	tx   txRunner
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(tx txRunner, repo Repository, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	return &service{tx: tx, repo: repo, logg: logg, now: time.Now}, nil
}

type variantDemand struct {
	variant  Variant
	quantity int
	lines    []Line
}

func (s *service) Reserve(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, lines []Line) ([]Reservation, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	demands, err := groupLines(lines)
	if err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	// Plain counts first: a short variant aborts before any row is locked.
	var shortages []Shortage
	for _, demand := range demands {
		available, err := repo.CountAvailable(ctx, demand.variant)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count available stock")
		}
		if available < int64(demand.quantity) {
			shortages = append(shortages, Shortage{Variant: demand.variant, Requested: demand.quantity, Available: int(available)})
		}
	}
	if len(shortages) > 0 {
		return nil, shortageError(&ShortageError{Shortages: shortages})
	}

	now := s.now().UTC()
	reservations := make([]Reservation, 0, totalQuantity(demands))
	for _, demand := range demands {
		units, err := repo.LockAvailable(ctx, demand.variant, demand.quantity)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock stock units")
		}
		if len(units) != demand.quantity {
			return nil, shortageError(&ShortageError{
				Shortages: []Shortage{{Variant: demand.variant, Requested: demand.quantity, Available: len(units)}},
				Raced:     true,
			})
		}

		next := 0
		for _, line := range demand.lines {
			for i := 0; i < line.Quantity; i++ {
				unit := units[next]
				next++
				affected, err := repo.MarkReserved(ctx, unit.ID, orderID, now)
				if err != nil {
					return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock unit")
				}
				if affected != 1 {
					return nil, pkgerrors.New(pkgerrors.CodeConflict, "stock unit reservation lost to a concurrent order").
						WithDetails(map[string]any{"stock_unit_id": unit.ID.String()})
				}
				unit.Status = enums.StockStatusReserved
				unit.ReservedByOrderID = &orderID
				unit.ReservedAt = &now
				reservations = append(reservations, Reservation{OrderItemID: line.OrderItemID, StockUnit: unit})
			}
		}
	}
	return reservations, nil
}

func (s *service) LockUnit(ctx context.Context, tx *gorm.DB, stockUnitID uuid.UUID) (*models.StockUnit, error) {
	unit, err := s.repo.WithTx(tx).LockByID(ctx, stockUnitID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stock unit not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock stock unit")
	}
	return unit, nil
}

func (s *service) ReturnUnit(ctx context.Context, tx *gorm.DB, stockUnitID, orderID uuid.UUID) error {
	affected, err := s.repo.WithTx(tx).ReturnToStock(ctx, stockUnitID, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "return stock unit")
	}
	if affected != 1 {
		return pkgerrors.New(pkgerrors.CodeConflict, "stock unit is not reserved by this order")
	}
	return nil
}

// RecordShortage stores operator-visible issues in a transaction of its own so
// they survive the rollback of the failed fulfillment.
func (s *service) RecordShortage(ctx context.Context, paidEventID, orderID uuid.UUID, shortages []Shortage) error {
	if len(shortages) == 0 {
		return nil
	}
	issues := make([]models.OrderStockIssue, 0, len(shortages))
	for _, shortage := range shortages {
		issues = append(issues, models.OrderStockIssue{
			PaidEventID: paidEventID,
			OrderID:     orderID,
			ProductID:   shortage.Variant.ProductID,
			Size:        optional(shortage.Variant.Size),
			Color:       optional(shortage.Variant.Color),
			Requested:   shortage.Requested,
			Available:   shortage.Available,
			Status:      enums.StockIssueStatusOpen,
		})
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).CreateIssues(ctx, issues)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stock shortage")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":      orderID.String(),
			"paid_event_id": paidEventID.String(),
			"variants":      len(issues),
		})
		s.logg.Warn(logCtx, "stock shortage recorded for paid order")
	}
	return nil
}

// ReleaseOrphaned returns reserved units of orderID that no live order item
// unit points at. Rollback normally does this; this is the explicit sweep.
func (s *service) ReleaseOrphaned(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var released int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := s.repo.WithTx(tx).ReleaseOrphanedForOrder(ctx, orderID)
		released = n
		return err
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release orphaned stock")
	}
	if released > 0 && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": orderID.String(), "released": released})
		s.logg.Warn(logCtx, "released orphaned stock reservations")
	}
	return released, nil
}

func (s *service) ListOrphanedOrders(ctx context.Context, reservedBefore time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListOrphanedOrders(ctx, reservedBefore, limit)
}

// Correct overrides a unit status. Taking a reserved unit back into stock is
// only allowed once every order item unit bound to it was refunded.
func (s *service) Correct(ctx context.Context, input CorrectionInput) (*models.StockUnit, error) {
	if input.StockUnitID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock unit id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid stock status")
	}
	if input.Status == enums.StockStatusReserved {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "units are reserved only by paid orders")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}

	var out *models.StockUnit
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		unit, err := s.LockUnit(ctx, tx, input.StockUnitID)
		if err != nil {
			return err
		}
		if unit.Status == input.Status {
			out = unit
			return nil
		}
		if unit.Status == enums.StockStatusReserved && input.Status == enums.StockStatusInStock {
			statuses, err := repo.BoundUnitStatuses(ctx, unit.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bound order item units")
			}
			for _, st := range statuses {
				if st != enums.UnitStatusRefunded {
					return pkgerrors.New(pkgerrors.CodeStateConflict, "stock unit is still bound to a live order item unit").
						WithDetails(map[string]any{"unit_status": st})
				}
			}
		}
		affected, err := repo.SetStatus(ctx, unit.ID, unit.Status, input.Status)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stock status")
		}
		if affected != 1 {
			return pkgerrors.New(pkgerrors.CodeConflict, "stock unit changed concurrently")
		}
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"stock_unit_id": unit.ID.String(),
				"from":          unit.Status,
				"to":            input.Status,
				"admin_id":      input.AdminID.String(),
				"reason":        reason,
			})
			s.logg.Info(logCtx, "stock unit corrected")
		}
		unit.Status = input.Status
		unit.ReservedByOrderID = nil
		unit.ReservedAt = nil
		out = unit
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func shortageError(err *ShortageError) error {
	return pkgerrors.Wrap(pkgerrors.CodeInsufficientStock, err, "insufficient inventory").WithDetails(err.Shortages)
}

// AsShortage extracts the shortage detail from a reservation error.
func AsShortage(err error) (*ShortageError, bool) {
	var shortage *ShortageError
	if errors.As(err, &shortage) {
		return shortage, true
	}
	return nil, false
}

func groupLines(lines []Line) ([]*variantDemand, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no order lines to reserve")
	}
	index := make(map[string]*variantDemand)
	var ordered []*variantDemand
	for _, line := range lines {
		if line.OrderItemID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item id required")
		}
		if strings.TrimSpace(line.Variant.ProductID) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		demand, ok := index[line.Variant.key()]
		if !ok {
			demand = &variantDemand{variant: line.Variant}
			index[line.Variant.key()] = demand
			ordered = append(ordered, demand)
		}
		demand.quantity += line.Quantity
		demand.lines = append(demand.lines, line)
	}
	return ordered, nil
}

func totalQuantity(demands []*variantDemand) int {
	total := 0
	for _, d := range demands {
		total += d.quantity
	}
	return total
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
