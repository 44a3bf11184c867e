package orderstatus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prepmood/prepmood-backend/pkg/enums"
)

func TestCompute(t *testing.T) {
	const (
		r = enums.UnitStatusReserved
		s = enums.UnitStatusShipped
		d = enums.UnitStatusDelivered
		x = enums.UnitStatusRefunded
	)
	cases := []struct {
		name  string
		units []enums.OrderItemUnitStatus
		paid  bool
		want  enums.OrderStatus
	}{
		{"no payment", []enums.OrderItemUnitStatus{r, r}, false, enums.OrderStatusPending},
		{"no payment even if shipped", []enums.OrderItemUnitStatus{s}, false, enums.OrderStatusPending},
		{"paid without units", nil, true, enums.OrderStatusPaid},
		{"all reserved", []enums.OrderItemUnitStatus{r, r}, true, enums.OrderStatusPaid},
		{"one shipped", []enums.OrderItemUnitStatus{s, r}, true, enums.OrderStatusPartialShipped},
		{"all shipped", []enums.OrderItemUnitStatus{s, s}, true, enums.OrderStatusShipped},
		{"one delivered rest shipped", []enums.OrderItemUnitStatus{d, s}, true, enums.OrderStatusPartialDelivered},
		{"one delivered rest reserved", []enums.OrderItemUnitStatus{d, r}, true, enums.OrderStatusPartialDelivered},
		{"all delivered", []enums.OrderItemUnitStatus{d, d}, true, enums.OrderStatusDelivered},
		{"all refunded", []enums.OrderItemUnitStatus{x, x}, true, enums.OrderStatusRefunded},
		{"partly refunded rest reserved", []enums.OrderItemUnitStatus{x, r}, true, enums.OrderStatusPaid},
		{"partly refunded rest shipped", []enums.OrderItemUnitStatus{x, s}, true, enums.OrderStatusPartialShipped},
		{"partly refunded rest delivered", []enums.OrderItemUnitStatus{x, d}, true, enums.OrderStatusPartialDelivered},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Compute(tc.units, tc.paid)
			require.Equal(t, tc.want, got)
			require.Equal(t, got, Compute(tc.units, tc.paid))
		})
	}
}
