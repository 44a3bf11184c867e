package router

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/prepmood/prepmood-backend/internal/analytics/types"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	"github.com/prepmood/prepmood-backend/pkg/outbox/payloads"
)

func enrichOrderPaid(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.OrderPaidEvent)
	if !ok {
		return fmt.Errorf("invalid payload for order_paid")
	}
	row.OrderID = stringPtr(event.OrderID.String())
	row.DocumentNumber = stringPtr(event.InvoiceNumber)
	row.Amount = ratPtr(event.Amount)
	row.Currency = stringPtr(string(event.Currency))
	row.Quantity = int64Ptr(int64(event.UnitCount))
	return nil
}

func enrichStatusChanged(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.OrderStatusChangedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for order_status_changed")
	}
	row.OrderID = stringPtr(event.OrderID.String())
	row.Status = stringPtr(string(event.To))
	return nil
}

func enrichOrderClaimed(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.OrderClaimedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for order_claimed")
	}
	row.OrderID = stringPtr(event.OrderID.String())
	row.Quantity = int64Ptr(int64(event.WarrantiesIssued))
	return nil
}

func enrichWarrantyIssued(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.WarrantyIssuedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for warranty_issued")
	}
	row.OrderID = stringPtr(event.OrderID.String())
	row.WarrantyPublicID = stringPtr(event.WarrantyPublicID)
	status := string(event.Status)
	if event.Resale {
		status += ":resale"
	}
	row.Status = stringPtr(status)
	return nil
}

func enrichWarrantyActivated(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.WarrantyActivatedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for warranty_activated")
	}
	row.WarrantyPublicID = stringPtr(event.WarrantyPublicID)
	row.Status = stringPtr(string(enums.WarrantyStatusActive))
	return nil
}

func enrichWarrantyTransferred(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.WarrantyTransferredEvent)
	if !ok {
		return fmt.Errorf("invalid payload for warranty_transferred")
	}
	row.WarrantyPublicID = stringPtr(event.WarrantyPublicID)
	row.DocumentNumber = stringPtr(event.TransferID)
	return nil
}

func enrichWarrantyStatus(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.WarrantyStatusEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", row.EventType)
	}
	row.WarrantyPublicID = stringPtr(event.WarrantyPublicID)
	row.Status = stringPtr(string(event.To))
	return nil
}

func enrichInvoiceIssued(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.InvoiceIssuedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for invoice_issued")
	}
	row.OrderID = stringPtr(event.OrderID.String())
	row.DocumentNumber = stringPtr(event.InvoiceNumber)
	row.Status = stringPtr(string(event.Type))
	row.Amount = ratPtr(event.Total)
	row.Currency = stringPtr(string(event.Currency))
	return nil
}

func enrichRefundProcessed(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.RefundProcessedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for refund_processed")
	}
	row.OrderID = stringPtr(event.OrderID.String())
	row.WarrantyPublicID = stringPtr(event.WarrantyPublicID)
	row.DocumentNumber = stringPtr(event.CreditNoteNumber)
	row.Amount = ratPtr(event.Amount.Neg())
	row.Currency = stringPtr(string(event.Currency))
	row.Quantity = int64Ptr(1)
	return nil
}

func enrichStockShortage(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.StockShortageEvent)
	if !ok {
		return fmt.Errorf("invalid payload for stock_shortage")
	}
	row.OrderID = stringPtr(event.OrderID.String())
	variant := strings.Join(nonEmpty(event.ProductID, event.Size, event.Color), "/")
	row.Status = stringPtr("short:" + variant)
	row.Quantity = int64Ptr(int64(event.Requested - event.Available))
	return nil
}

func stringPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func int64Ptr(value int64) *int64 {
	return &value
}

func ratPtr(value decimal.Decimal) *big.Rat {
	return value.Rat()
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
