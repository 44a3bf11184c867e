package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prepmood/prepmood-backend/api/responses"
	"github.com/prepmood/prepmood-backend/api/validators"
	"github.com/prepmood/prepmood-backend/internal/fulfillment"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/logger"
)

// PaymentSignatureHeader carries hex(HMAC-SHA256(secret, body)) from the gateway collaborator.
const PaymentSignatureHeader = "X-Payment-Signature"

const maxCallbackBody = 1 << 20

type paymentProcessor interface {
	ProcessPayment(ctx context.Context, payment fulfillment.ConfirmedPayment) (*fulfillment.Outcome, error)
}

type paymentConfirmRequest struct {
	OrderID     string          `json:"order_id" validate:"required,uuid"`
	PaymentKey  string          `json:"payment_key" validate:"required,max=200"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"required,len=3"`
	Source      string          `json:"source" validate:"omitempty,oneof=webhook redirect manual_verify"`
	ConfirmedAt *time.Time      `json:"confirmed_at"`
	Raw         json.RawMessage `json:"raw"`
}

// PaymentConfirm receives a provider confirmed payment and runs the whole
// fulfillment chain for it. Replays answer with the stored outcome.
func PaymentConfirm(svc paymentProcessor, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
			return
		}
		if strings.TrimSpace(secret) == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment callback secret not configured"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
			return
		}
		if !validSignature(secret, body, r.Header.Get(PaymentSignatureHeader)) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid payment signature"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		var req paymentConfirmRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		currency, err := enums.ParseCurrency(strings.ToUpper(req.Currency))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency"))
			return
		}
		if !req.Amount.IsPositive() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive"))
			return
		}

		source := enums.PaidEventSourceWebhook
		if req.Source != "" {
			source = enums.PaidEventSource(req.Source)
		}

		payment := fulfillment.ConfirmedPayment{
			OrderID:    uuid.MustParse(req.OrderID),
			PaymentKey: strings.TrimSpace(req.PaymentKey),
			Amount:     req.Amount,
			Currency:   currency,
			Source:     source,
			RawPayload: req.Raw,
		}
		if req.ConfirmedAt != nil {
			payment.ConfirmedAt = req.ConfirmedAt.UTC()
		}

		outcome, err := svc.ProcessPayment(r.Context(), payment)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if outcome.AlreadyProcessed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, outcome)
	}
}

func validSignature(secret string, body []byte, provided string) bool {
	provided = strings.TrimSpace(provided)
	if provided == "" {
		return false
	}
	expected, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}
