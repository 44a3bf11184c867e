// Package orderstatus derives the coarse order status from unit statuses.
// Recompute is the only writer of orders.status.
package orderstatus

import "github.com/prepmood/prepmood-backend/pkg/enums"

// Compute applies the status precedence to a snapshot of unit statuses.
// paid reports whether payment evidence exists for the order.
func Compute(units []enums.OrderItemUnitStatus, paid bool) enums.OrderStatus {
	if !paid {
		return enums.OrderStatusPending
	}
	total := len(units)
	if total == 0 {
		return enums.OrderStatusPaid
	}

	var shipped, delivered, refunded int
	for _, status := range units {
		switch status {
		case enums.UnitStatusShipped:
			shipped++
		case enums.UnitStatusDelivered:
			shipped++
			delivered++
		case enums.UnitStatusRefunded:
			refunded++
		}
	}

	switch {
	case refunded == total:
		return enums.OrderStatusRefunded
	case delivered == total:
		return enums.OrderStatusDelivered
	case delivered > 0:
		return enums.OrderStatusPartialDelivered
	case shipped == total:
		return enums.OrderStatusShipped
	case shipped > 0:
		return enums.OrderStatusPartialShipped
	default:
		return enums.OrderStatusPaid
	}
}
