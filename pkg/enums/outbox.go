package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder      OutboxAggregateType = "order"
	AggregateWarranty   OutboxAggregateType = "warranty"
	AggregateInvoice    OutboxAggregateType = "invoice"
	AggregateStockIssue OutboxAggregateType = "stock_issue"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateWarranty,
	AggregateInvoice,
	AggregateStockIssue,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderPaid           OutboxEventType = "order_paid"
	EventOrderStatusChanged  OutboxEventType = "order_status_changed"
	EventOrderClaimed        OutboxEventType = "order_claimed"
	EventWarrantyIssued      OutboxEventType = "warranty_issued"
	EventWarrantyActivated   OutboxEventType = "warranty_activated"
	EventWarrantyTransferred OutboxEventType = "warranty_transferred"
	EventWarrantySuspended   OutboxEventType = "warranty_suspended"
	EventWarrantyUnsuspended OutboxEventType = "warranty_unsuspended"
	EventInvoiceIssued       OutboxEventType = "invoice_issued"
	EventRefundProcessed     OutboxEventType = "refund_processed"
	EventStockShortage       OutboxEventType = "stock_shortage"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderPaid,
	EventOrderStatusChanged,
	EventOrderClaimed,
	EventWarrantyIssued,
	EventWarrantyActivated,
	EventWarrantyTransferred,
	EventWarrantySuspended,
	EventWarrantyUnsuspended,
	EventInvoiceIssued,
	EventRefundProcessed,
	EventStockShortage,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
