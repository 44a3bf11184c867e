package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/pkg/db/models"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
)

// Service exposes read access to orders. Status writes belong to the
// orderstatus aggregator and owner writes to the claim flow.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Lock(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
	StatusForOwner(ctx context.Context, orderID, userID uuid.UUID) (*StatusView, error)
	// StatusForGuest assumes the caller already verified a guest access token for orderID.
	StatusForGuest(ctx context.Context, orderID uuid.UUID) (*StatusView, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "load order")
	}
	return order, nil
}

func (s *service) Lock(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).LockByID(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "lock order")
	}
	return order, nil
}

func (s *service) StatusForOwner(ctx context.Context, orderID, userID uuid.UUID) (*StatusView, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID == nil || *order.UserID != userID {
		// Foreign orders look the same as missing ones.
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.view(ctx, order)
}

func (s *service) StatusForGuest(ctx context.Context, orderID uuid.UUID) (*StatusView, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, order)
}

func (s *service) view(ctx context.Context, order *models.Order) (*StatusView, error) {
	units, err := s.repo.ListUnitViews(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order units")
	}
	if units == nil {
		units = []UnitView{}
	}
	return &StatusView{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		PaidAt:      order.PaidAt,
		Guest:       order.IsGuest(),
		Units:       units,
	}, nil
}

func notFoundOr(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
