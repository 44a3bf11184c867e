package enums

import "fmt"

type StockIssueStatus string

const (
	StockIssueStatusOpen     StockIssueStatus = "open"
	StockIssueStatusResolved StockIssueStatus = "resolved"
)

var validStockIssueStatuses = []StockIssueStatus{
	StockIssueStatusOpen,
	StockIssueStatusResolved,
}

// String implements fmt.Stringer.
func (s StockIssueStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StockIssueStatus.
func (s StockIssueStatus) IsValid() bool {
	for _, candidate := range validStockIssueStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStockIssueStatus converts raw input into a StockIssueStatus.
func ParseStockIssueStatus(value string) (StockIssueStatus, error) {
	for _, candidate := range validStockIssueStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock issue status %q", value)
}
