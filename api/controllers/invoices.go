package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/prepmood/prepmood-backend/api/responses"
	"github.com/prepmood/prepmood-backend/internal/invoices"
	"github.com/prepmood/prepmood-backend/pkg/logger"
	"github.com/prepmood/prepmood-backend/pkg/pagination"
)

type invoiceReader interface {
	ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (*invoices.Page, error)
	GetForOwner(ctx context.Context, invoiceID, userID uuid.UUID) (*invoices.Document, error)
	RenderPDF(ctx context.Context, invoiceID, userID uuid.UUID) ([]byte, string, error)
}

func MyInvoices(svc invoiceReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListMine(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func InvoiceDetail(svc invoiceReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceID, err := pathUUID(r, "invoiceId", "invoice id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		doc, err := svc.GetForOwner(r.Context(), invoiceID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, doc)
	}
}

func InvoicePDF(svc invoiceReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceID, err := pathUUID(r, "invoiceId", "invoice id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		content, filename, err := svc.RenderPDF(r.Context(), invoiceID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteAttachment(w, "application/pdf", filename, content)
	}
}
