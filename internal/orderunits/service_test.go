package orderunits

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/internal/stock"
	"github.com/prepmood/prepmood-backend/pkg/db/dbtest"
	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
)

func setup(t *testing.T) (Service, *gorm.DB, models.Order, []stock.Reservation) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn), nil)
	require.NoError(t, err)

	units := dbtest.SeedStock(t, conn, "wallet", "", "", 3)
	order := dbtest.SeedOrder(t, conn, dbtest.OrderSeed{Lines: []dbtest.LineSeed{
		{ProductID: "wallet", Quantity: 2, UnitPrice: 300000},
		{ProductID: "wallet", Quantity: 1, UnitPrice: 300000},
	}})
	reservations := []stock.Reservation{
		{OrderItemID: order.Items[0].ID, StockUnit: units[0]},
		{OrderItemID: order.Items[0].ID, StockUnit: units[1]},
		{OrderItemID: order.Items[1].ID, StockUnit: units[2]},
	}
	return svc, conn, order, reservations
}

func TestMaterializeNumbersUnitsPerItem(t *testing.T) {
	svc, conn, order, reservations := setup(t)

	units, err := svc.Materialize(context.Background(), conn, order.ID, reservations)
	require.NoError(t, err)
	require.Len(t, units, 3)
	require.Equal(t, 1, units[0].UnitSeq)
	require.Equal(t, 2, units[1].UnitSeq)
	require.Equal(t, 1, units[2].UnitSeq)
	for i, unit := range units {
		require.Equal(t, enums.UnitStatusReserved, unit.Status)
		require.Equal(t, reservations[i].StockUnit.ID, unit.StockUnitID)
		require.Equal(t, reservations[i].StockUnit.SerialTokenID, unit.SerialTokenID)
	}
}

func TestMaterializeReplayReusesRows(t *testing.T) {
	svc, conn, order, reservations := setup(t)

	first, err := svc.Materialize(context.Background(), conn, order.ID, reservations)
	require.NoError(t, err)
	second, err := svc.Materialize(context.Background(), conn, order.ID, reservations)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		require.Equal(t, first[i].ID, second[i].ID)
	}
	var count int64
	require.NoError(t, conn.Model(&models.OrderItemUnit{}).Count(&count).Error)
	require.EqualValues(t, 3, count)
}

func TestMarkRefundedOnce(t *testing.T) {
	svc, conn, order, reservations := setup(t)
	units, err := svc.Materialize(context.Background(), conn, order.ID, reservations[:1])
	require.NoError(t, err)

	unit := units[0]
	require.NoError(t, svc.MarkRefunded(context.Background(), conn, &unit))
	require.Equal(t, enums.UnitStatusRefunded, unit.Status)
	require.NotNil(t, unit.RefundedAt)

	err = svc.MarkRefunded(context.Background(), conn, &unit)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	stored, err := svc.Lock(context.Background(), conn, unit.ID)
	require.NoError(t, err)
	require.Equal(t, enums.UnitStatusRefunded, stored.Status)
}

func TestMaterializeRequiresTx(t *testing.T) {
	svc, _, order, reservations := setup(t)
	_, err := svc.Materialize(context.Background(), nil, order.ID, reservations)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}
