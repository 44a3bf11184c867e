package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/prepmood/prepmood-backend/internal/invoices"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/pagination"
)

type stubInvoices struct {
	listFn   func(ctx context.Context, userID uuid.UUID, params pagination.Params) (*invoices.Page, error)
	getFn    func(ctx context.Context, invoiceID, userID uuid.UUID) (*invoices.Document, error)
	renderFn func(ctx context.Context, invoiceID, userID uuid.UUID) ([]byte, string, error)
}

func (s stubInvoices) ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (*invoices.Page, error) {
	return s.listFn(ctx, userID, params)
}

func (s stubInvoices) GetForOwner(ctx context.Context, invoiceID, userID uuid.UUID) (*invoices.Document, error) {
	return s.getFn(ctx, invoiceID, userID)
}

func (s stubInvoices) RenderPDF(ctx context.Context, invoiceID, userID uuid.UUID) ([]byte, string, error) {
	return s.renderFn(ctx, invoiceID, userID)
}

func TestMyInvoicesDefaultsLimit(t *testing.T) {
	userID := uuid.New()
	svc := stubInvoices{listFn: func(ctx context.Context, gotUser uuid.UUID, params pagination.Params) (*invoices.Page, error) {
		if gotUser != userID || params.Limit != pagination.DefaultLimit {
			t.Fatalf("unexpected args %s %+v", gotUser, params)
		}
		return &invoices.Page{Invoices: []invoices.Summary{{InvoiceNumber: "PM-INV-260101-000001"}}}, nil
	}}
	resp := serve(MyInvoices(svc, nil), asUser(newRequest(http.MethodGet, "/", ""), userID, string(enums.RoleCustomer)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if page := decodeData[invoices.Page](t, resp); len(page.Invoices) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestMyInvoicesRejectsOversizedLimit(t *testing.T) {
	svc := stubInvoices{listFn: func(ctx context.Context, userID uuid.UUID, params pagination.Params) (*invoices.Page, error) {
		t.Fatalf("list must not run")
		return nil, nil
	}}
	req := asUser(newRequest(http.MethodGet, "/?limit=1000", ""), uuid.New(), string(enums.RoleCustomer))
	resp := serve(MyInvoices(svc, nil), req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestInvoiceDetailHidesOtherUsersInvoices(t *testing.T) {
	svc := stubInvoices{getFn: func(ctx context.Context, invoiceID, userID uuid.UUID) (*invoices.Document, error) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	}}
	req := withURLParams(newRequest(http.MethodGet, "/", ""), map[string]string{"invoiceId": uuid.NewString()})
	resp := serve(InvoiceDetail(svc, nil), asUser(req, uuid.New(), string(enums.RoleCustomer)))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestInvoicePDFAttachment(t *testing.T) {
	invoiceID := uuid.New()
	svc := stubInvoices{renderFn: func(ctx context.Context, id, userID uuid.UUID) ([]byte, string, error) {
		if id != invoiceID {
			t.Fatalf("unexpected invoice %s", id)
		}
		return []byte("%PDF-1.4"), "PM-INV-260101-000001.pdf", nil
	}}
	req := withURLParams(newRequest(http.MethodGet, "/", ""), map[string]string{"invoiceId": invoiceID.String()})
	resp := serve(InvoicePDF(svc, nil), asUser(req, uuid.New(), string(enums.RoleCustomer)))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if resp.Body.String() != "%PDF-1.4" {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}
}
