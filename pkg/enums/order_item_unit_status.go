package enums

import "fmt"

type OrderItemUnitStatus string

const (
	UnitStatusReserved  OrderItemUnitStatus = "reserved"
	UnitStatusShipped   OrderItemUnitStatus = "shipped"
	UnitStatusDelivered OrderItemUnitStatus = "delivered"
	UnitStatusRefunded  OrderItemUnitStatus = "refunded"
)

var validOrderItemUnitStatuses = []OrderItemUnitStatus{
	UnitStatusReserved,
	UnitStatusShipped,
	UnitStatusDelivered,
	UnitStatusRefunded,
}

// String implements fmt.Stringer.
func (o OrderItemUnitStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderItemUnitStatus.
func (o OrderItemUnitStatus) IsValid() bool {
	for _, candidate := range validOrderItemUnitStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderItemUnitStatus converts raw input into a OrderItemUnitStatus.
func ParseOrderItemUnitStatus(value string) (OrderItemUnitStatus, error) {
	for _, candidate := range validOrderItemUnitStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order item unit status %q", value)
}

// IsActive reports whether the unit still binds its stock unit to the order.
func (o OrderItemUnitStatus) IsActive() bool {
	return o == UnitStatusReserved || o == UnitStatusShipped || o == UnitStatusDelivered
}
