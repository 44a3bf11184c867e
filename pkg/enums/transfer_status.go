package enums

import "fmt"

// TransferStatus tracks a peer-to-peer warranty handoff.
type TransferStatus string

const (
	TransferStatusRequested TransferStatus = "requested"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusExpired   TransferStatus = "expired"
)

var validTransferStatuses = []TransferStatus{
	TransferStatusRequested,
	TransferStatusCompleted,
	TransferStatusExpired,
}

// String implements fmt.Stringer.
func (t TransferStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransferStatus.
func (t TransferStatus) IsValid() bool {
	for _, candidate := range validTransferStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransferStatus converts raw input into a TransferStatus.
func ParseTransferStatus(value string) (TransferStatus, error) {
	for _, candidate := range validTransferStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transfer status %q", value)
}
