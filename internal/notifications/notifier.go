// Package notifications is the boundary to the mail collaborator. Delivery
// failures never roll back the domain operation that triggered them.
package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prepmood/prepmood-backend/pkg/enums"
	"github.com/prepmood/prepmood-backend/pkg/logger"
)

// Notifier sends buyer-facing messages.
type Notifier interface {
	OrderConfirmed(ctx context.Context, msg OrderConfirmation) error
	TransferRequested(ctx context.Context, msg TransferRequest) error
}

type OrderConfirmation struct {
	OrderID           uuid.UUID
	OrderNumber       string
	Email             string
	Total             decimal.Decimal
	Currency          enums.Currency
	WarrantyPublicIDs []string
	// GuestLookupURL is set for guest orders only.
	GuestLookupURL string
}

type TransferRequest struct {
	TransferID       string
	WarrantyPublicID string
	ToEmail          string
	Code             string
	ExpiresAt        time.Time
}

// LogNotifier records messages in the structured log instead of mailing them.
type LogNotifier struct {
	logg *logger.Logger
}

func NewLogNotifier(logg *logger.Logger) (*LogNotifier, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &LogNotifier{logg: logg}, nil
}

func (n *LogNotifier) OrderConfirmed(ctx context.Context, msg OrderConfirmation) error {
	if msg.Email == "" {
		return fmt.Errorf("order %s has no recipient email", msg.OrderNumber)
	}
	ctx = n.logg.WithFields(ctx, map[string]any{
		"order_id":     msg.OrderID.String(),
		"order_number": msg.OrderNumber,
		"warranties":   len(msg.WarrantyPublicIDs),
		"guest":        msg.GuestLookupURL != "",
	})
	n.logg.Info(ctx, "order confirmation queued")
	return nil
}

// TransferRequested never logs the code itself.
func (n *LogNotifier) TransferRequested(ctx context.Context, msg TransferRequest) error {
	if msg.ToEmail == "" {
		return fmt.Errorf("transfer %s has no recipient email", msg.TransferID)
	}
	ctx = n.logg.WithFields(ctx, map[string]any{
		"transfer_id":        msg.TransferID,
		"warranty_public_id": msg.WarrantyPublicID,
		"expires_at":         msg.ExpiresAt.UTC().Format(time.RFC3339),
	})
	n.logg.Info(ctx, "warranty transfer notice queued")
	return nil
}
