package enums

import "fmt"

// WarrantyStatus is the lifecycle state of a warranty record.
type WarrantyStatus string

const (
	WarrantyStatusIssuedUnassigned WarrantyStatus = "issued_unassigned"
	WarrantyStatusIssued           WarrantyStatus = "issued"
	WarrantyStatusActive           WarrantyStatus = "active"
	WarrantyStatusSuspended        WarrantyStatus = "suspended"
	WarrantyStatusRevoked          WarrantyStatus = "revoked"
)

var validWarrantyStatuses = []WarrantyStatus{
	WarrantyStatusIssuedUnassigned,
	WarrantyStatusIssued,
	WarrantyStatusActive,
	WarrantyStatusSuspended,
	WarrantyStatusRevoked,
}

// String implements fmt.Stringer.
func (w WarrantyStatus) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WarrantyStatus.
func (w WarrantyStatus) IsValid() bool {
	for _, candidate := range validWarrantyStatuses {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWarrantyStatus converts raw input into a WarrantyStatus.
func ParseWarrantyStatus(value string) (WarrantyStatus, error) {
	for _, candidate := range validWarrantyStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid warranty status %q", value)
}
