package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/prepmood/prepmood-backend/api/middleware"
	"github.com/prepmood/prepmood-backend/api/responses"
	"github.com/prepmood/prepmood-backend/api/validators"
	"github.com/prepmood/prepmood-backend/internal/claims"
	"github.com/prepmood/prepmood-backend/internal/orders"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/logger"
)

type orderStatusReader interface {
	StatusForOwner(ctx context.Context, orderID, userID uuid.UUID) (*orders.StatusView, error)
	StatusForGuest(ctx context.Context, orderID uuid.UUID) (*orders.StatusView, error)
}

type guestAccessVerifier interface {
	VerifyGuestAccess(ctx context.Context, orderID uuid.UUID, token string) error
}

type claimTokenIssuer interface {
	IssueClaimToken(ctx context.Context, orderID uuid.UUID, guestToken string) (*claims.IssuedToken, error)
}

type orderClaimer interface {
	Claim(ctx context.Context, input claims.ClaimInput) (*claims.ClaimResult, error)
}

// guestToken reads the guest access token from the header, falling back to
// the query string used by the emailed lookup link.
func guestToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(middleware.GuestTokenHeader)); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// OrderStatus serves the account owner when a bearer token is present and a
// guest token holder otherwise.
func OrderStatus(views orderStatusReader, guests guestAccessVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathUUID(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if userID, ok := middleware.UserUUIDFromContext(r.Context()); ok {
			view, err := views.StatusForOwner(r.Context(), orderID, userID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, view)
			return
		}

		token := guestToken(r)
		if token == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		if err := guests.VerifyGuestAccess(r.Context(), orderID, token); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := views.StatusForGuest(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// OrderClaimToken exchanges a guest access token for a short lived claim token.
func OrderClaimToken(svc claimTokenIssuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathUUID(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		token := guestToken(r)
		if token == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "guest access token required"))
			return
		}

		issued, err := svc.IssueClaimToken(r.Context(), orderID, token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, issued)
	}
}

type claimRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

// OrderClaim binds a guest order and its warranties to the signed in account.
func OrderClaim(svc orderClaimer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body claimRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Claim(r.Context(), claims.ClaimInput{
			OrderID: orderID,
			UserID:  userID,
			Token:   strings.TrimSpace(body.Token),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
