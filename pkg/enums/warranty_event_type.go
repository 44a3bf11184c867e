package enums

import "fmt"

// WarrantyEventType classifies rows of the warranty audit log.
type WarrantyEventType string

const (
	WarrantyEventStatusChange         WarrantyEventType = "status_change"
	WarrantyEventActivation           WarrantyEventType = "activation"
	WarrantyEventOwnershipTransferred WarrantyEventType = "ownership_transferred"
	WarrantyEventClaim                WarrantyEventType = "claim"
	WarrantyEventSuspend              WarrantyEventType = "suspend"
	WarrantyEventUnsuspend            WarrantyEventType = "unsuspend"
	WarrantyEventResale               WarrantyEventType = "resale"
)

var validWarrantyEventTypes = []WarrantyEventType{
	WarrantyEventStatusChange,
	WarrantyEventActivation,
	WarrantyEventOwnershipTransferred,
	WarrantyEventClaim,
	WarrantyEventSuspend,
	WarrantyEventUnsuspend,
	WarrantyEventResale,
}

// String implements fmt.Stringer.
func (w WarrantyEventType) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WarrantyEventType.
func (w WarrantyEventType) IsValid() bool {
	for _, candidate := range validWarrantyEventTypes {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWarrantyEventType converts raw input into a WarrantyEventType.
func ParseWarrantyEventType(value string) (WarrantyEventType, error) {
	for _, candidate := range validWarrantyEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid warranty event type %q", value)
}
