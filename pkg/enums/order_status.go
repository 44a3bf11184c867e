package enums

import "fmt"

// OrderStatus is the coarse order state. It is derived from unit states and only
// written by the order status aggregator.
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "pending"
	OrderStatusPaid             OrderStatus = "paid"
	OrderStatusPartialShipped   OrderStatus = "partial_shipped"
	OrderStatusShipped          OrderStatus = "shipped"
	OrderStatusPartialDelivered OrderStatus = "partial_delivered"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusRefunded         OrderStatus = "refunded"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusPartialShipped,
	OrderStatusShipped,
	OrderStatusPartialDelivered,
	OrderStatusDelivered,
	OrderStatusRefunded,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into a OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
