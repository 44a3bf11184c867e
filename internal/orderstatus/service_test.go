package orderstatus

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/internal/orders"
	"github.com/prepmood/prepmood-backend/internal/orderunits"
	"github.com/prepmood/prepmood-backend/internal/paidevents"
	"github.com/prepmood/prepmood-backend/pkg/db/dbtest"
	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/outbox"
)

func newAggregator(t *testing.T, conn *gorm.DB) Aggregator {
	t.Helper()
	agg, err := NewAggregator(
		orders.NewRepository(conn),
		orderunits.NewRepository(conn),
		paidevents.NewRepository(conn),
		outbox.NewService(outbox.NewRepository(conn), nil),
		nil,
	)
	require.NoError(t, err)
	return agg
}

func statusChanges(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderStatusChanged).Count(&count).Error)
	return count
}

func TestRecomputeFollowsUnits(t *testing.T) {
	conn := dbtest.Open(t)
	agg := newAggregator(t, conn)
	ctx := context.Background()
	order := dbtest.SeedOrder(t, conn, dbtest.OrderSeed{Lines: []dbtest.LineSeed{{ProductID: "tie", Quantity: 2, UnitPrice: 90000}}})
	units := dbtest.SeedOrderUnits(t, conn, order)

	res, err := agg.Recompute(ctx, conn, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, res.To)
	require.False(t, res.Changed)
	require.Zero(t, statusChanges(t, conn))

	dbtest.SeedPaidEvent(t, conn, order)
	res, err = agg.Recompute(ctx, conn, order.ID)
	require.NoError(t, err)
	require.Equal(t, Result{From: enums.OrderStatusPending, To: enums.OrderStatusPaid, Changed: true}, res)

	require.NoError(t, conn.Model(&models.OrderItemUnit{}).Where("id = ?", units[0].ID).Update("unit_status", enums.UnitStatusShipped).Error)
	res, err = agg.Recompute(ctx, conn, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPartialShipped, res.To)

	again, err := agg.Recompute(ctx, conn, order.ID)
	require.NoError(t, err)
	require.False(t, again.Changed)
	require.EqualValues(t, 2, statusChanges(t, conn))

	var stored models.Order
	require.NoError(t, conn.First(&stored, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusPartialShipped, stored.Status)
}

func TestRecomputeUnknownOrder(t *testing.T) {
	conn := dbtest.Open(t)
	agg := newAggregator(t, conn)
	_, err := agg.Recompute(context.Background(), conn, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
