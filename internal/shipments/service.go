package shipments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/internal/orders"
	"github.com/prepmood/prepmood-backend/internal/orderstatus"
	"github.com/prepmood/prepmood-backend/internal/orderunits"
	"github.com/prepmood/prepmood-backend/pkg/db"
	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service moves units through shipped and delivered. Every call ends with an
// order status recompute inside the same transaction.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*Result, error)
	Deliver(ctx context.Context, input DeliverInput) (*Result, error)
}

type Params struct {
	Tx         txRunner
	Orders     orders.Service
	Units      orderunits.Repository
	Aggregator orderstatus.Aggregator
	Logger     *logger.Logger
}

type service struct {
	tx         txRunner
	orders     orders.Service
	units      orderunits.Repository
	aggregator orderstatus.Aggregator
	validate   *validator.Validate
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(params Params) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Units == nil {
		return nil, fmt.Errorf("order unit repository required")
	}
	if params.Aggregator == nil {
		return nil, fmt.Errorf("order status aggregator required")
	}
	return &service{
		tx:         params.Tx,
		orders:     params.Orders,
		units:      params.Units,
		aggregator: params.Aggregator,
		validate:   validator.New(),
		logg:       params.Logger,
		now:        time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*Result, error) {
	input.CarrierCode = strings.TrimSpace(input.CarrierCode)
	input.TrackingNumber = strings.TrimSpace(input.TrackingNumber)
	input.UnitIDs = distinct(input.UnitIDs)
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipment")
	}

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.orders.Lock(ctx, tx, input.OrderID); err != nil {
			return err
		}
		repo := s.units.WithTx(tx)
		taken, err := repo.TrackingNumberTaken(ctx, input.TrackingNumber)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check tracking number")
		}
		if taken {
			return pkgerrors.New(pkgerrors.CodeConflict, "tracking number already used").
				WithDetails(map[string]any{"tracking_number": input.TrackingNumber})
		}
		if err := s.checkUnits(ctx, repo, input.OrderID, input.UnitIDs, enums.UnitStatusReserved); err != nil {
			return err
		}

		now := s.now().UTC()
		adminID := input.AdminID
		shipment := &models.Shipment{
			OrderID:        input.OrderID,
			CarrierCode:    input.CarrierCode,
			TrackingNumber: input.TrackingNumber,
			CreatedBy:      &adminID,
			ShippedAt:      now,
		}
		if err := repo.CreateShipment(ctx, shipment); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "tracking number already used")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shipment")
		}
		affected, err := repo.MarkShipped(ctx, input.OrderID, shipment.ID, input.UnitIDs, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark units shipped")
		}
		if affected != int64(len(input.UnitIDs)) {
			return pkgerrors.New(pkgerrors.CodeConflict, "units changed while shipping").
				WithDetails(map[string]any{"expected": len(input.UnitIDs), "affected": affected})
		}

		status, err := s.aggregator.Recompute(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		result = &Result{
			ShipmentID:     &shipment.ID,
			OrderID:        input.OrderID,
			TrackingNumber: shipment.TrackingNumber,
			UnitIDs:        input.UnitIDs,
			OrderStatus:    status.To,
			At:             now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id":    input.OrderID.String(),
			"shipment_id": result.ShipmentID.String(),
			"units":       len(result.UnitIDs),
			"carrier":     input.CarrierCode,
		}), "shipment created")
	}
	return result, nil
}

func (s *service) Deliver(ctx context.Context, input DeliverInput) (*Result, error) {
	input.UnitIDs = distinct(input.UnitIDs)
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery")
	}

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.orders.Lock(ctx, tx, input.OrderID); err != nil {
			return err
		}
		repo := s.units.WithTx(tx)
		if err := s.checkUnits(ctx, repo, input.OrderID, input.UnitIDs, enums.UnitStatusShipped); err != nil {
			return err
		}

		now := s.now().UTC()
		affected, err := repo.MarkDelivered(ctx, input.OrderID, input.UnitIDs, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark units delivered")
		}
		if affected != int64(len(input.UnitIDs)) {
			return pkgerrors.New(pkgerrors.CodeConflict, "units changed while delivering").
				WithDetails(map[string]any{"expected": len(input.UnitIDs), "affected": affected})
		}

		status, err := s.aggregator.Recompute(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		result = &Result{
			OrderID:     input.OrderID,
			UnitIDs:     input.UnitIDs,
			OrderStatus: status.To,
			At:          now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id": input.OrderID.String(),
			"units":    len(result.UnitIDs),
			"status":   result.OrderStatus,
		}), "units delivered")
	}
	return result, nil
}

// checkUnits locks the requested units and reports the first one that is
// foreign to the order or not in the expected state.
func (s *service) checkUnits(ctx context.Context, repo orderunits.Repository, orderID uuid.UUID, ids []uuid.UUID, want enums.OrderItemUnitStatus) error {
	units, err := repo.ListByIDs(ctx, orderID, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order units")
	}
	if len(units) != len(ids) {
		found := make(map[uuid.UUID]struct{}, len(units))
		for _, unit := range units {
			found[unit.ID] = struct{}{}
		}
		missing := make([]string, 0, len(ids)-len(units))
		for _, id := range ids {
			if _, ok := found[id]; !ok {
				missing = append(missing, id.String())
			}
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "units do not belong to the order").
			WithDetails(map[string]any{"unit_ids": missing})
	}
	for _, unit := range units {
		if unit.Status != want {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "unit is not "+string(want)).
				WithDetails(map[string]any{"unit_id": unit.ID.String(), "current": unit.Status})
		}
		if want == enums.UnitStatusReserved && unit.ShipmentID != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "unit already shipped").
				WithDetails(map[string]any{"unit_id": unit.ID.String()})
		}
	}
	return nil
}
