package enums

import "fmt"

// PaidEventSource records which channel confirmed the payment.
type PaidEventSource string

const (
	PaidEventSourceWebhook      PaidEventSource = "webhook"
	PaidEventSourceRedirect     PaidEventSource = "redirect"
	PaidEventSourceManualVerify PaidEventSource = "manual_verify"
	PaidEventSourceRecovery     PaidEventSource = "recovery"
)

var validPaidEventSources = []PaidEventSource{
	PaidEventSourceWebhook,
	PaidEventSourceRedirect,
	PaidEventSourceManualVerify,
	PaidEventSourceRecovery,
}

// String implements fmt.Stringer.
func (p PaidEventSource) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaidEventSource.
func (p PaidEventSource) IsValid() bool {
	for _, candidate := range validPaidEventSources {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaidEventSource converts raw input into a PaidEventSource.
func ParsePaidEventSource(value string) (PaidEventSource, error) {
	for _, candidate := range validPaidEventSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid paid event source %q", value)
}
