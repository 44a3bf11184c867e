package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/prepmood/prepmood-backend/api/responses"
	"github.com/prepmood/prepmood-backend/api/validators"
	"github.com/prepmood/prepmood-backend/internal/transfers"
	"github.com/prepmood/prepmood-backend/internal/warranties"
	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/logger"
)

type warrantyActivator interface {
	Activate(ctx context.Context, input warranties.ActivateInput) (*models.Warranty, error)
}

type warrantyLookup interface {
	Lookup(ctx context.Context, publicID string) (*warranties.PublicView, error)
}

type transferRequester interface {
	Request(ctx context.Context, input transfers.RequestInput) (*transfers.RequestResult, error)
}

type transferAcceptor interface {
	Accept(ctx context.Context, input transfers.AcceptInput) (*transfers.AcceptResult, error)
}

type activateRequest struct {
	Agreed bool `json:"agreed"`
}

// WarrantyActivate lets the owner start the warranty once they accept the terms.
func WarrantyActivate(svc warrantyActivator, views warrantyLookup, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		publicID, err := pathString(r, "publicId", "warranty id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body activateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if _, err := svc.Activate(r.Context(), warranties.ActivateInput{
			PublicID: publicID,
			UserID:   userID,
			Agreed:   body.Agreed,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := views.Lookup(r.Context(), publicID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

type transferRequest struct {
	ToEmail string `json:"to_email" validate:"required,email,max=254"`
}

// WarrantyTransfer starts an ownership transfer. The acceptance code only
// travels to the recipient.
func WarrantyTransfer(svc transferRequester, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		publicID, err := pathString(r, "publicId", "warranty id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body transferRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Request(r.Context(), transfers.RequestInput{
			PublicID: publicID,
			UserID:   userID,
			ToEmail:  strings.ToLower(strings.TrimSpace(body.ToEmail)),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type acceptTransferRequest struct {
	TransferID string `json:"transfer_id" validate:"required,max=64"`
	Code       string `json:"code" validate:"required,max=32"`
}

func WarrantyTransferAccept(svc transferAcceptor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body acceptTransferRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Accept(r.Context(), transfers.AcceptInput{
			TransferID: strings.TrimSpace(body.TransferID),
			Code:       strings.TrimSpace(body.Code),
			UserID:     userID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// WarrantyLookup is public: anyone holding the identifier sees the authenticity view.
func WarrantyLookup(svc warrantyLookup, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		publicID, err := pathString(r, "publicId", "warranty id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Lookup(r.Context(), publicID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
