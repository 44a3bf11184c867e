package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prepmood/prepmood-backend/internal/refunds"
	"github.com/prepmood/prepmood-backend/internal/shipments"
	"github.com/prepmood/prepmood-backend/internal/stock"
	"github.com/prepmood/prepmood-backend/internal/warranties"
	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	"github.com/prepmood/prepmood-backend/pkg/pagination"
)

type stubRefunds struct {
	fn func(ctx context.Context, input refunds.Input) (*refunds.Result, error)
}

func (s stubRefunds) Refund(ctx context.Context, input refunds.Input) (*refunds.Result, error) {
	return s.fn(ctx, input)
}

type stubShipments struct {
	createFn  func(ctx context.Context, input shipments.CreateInput) (*shipments.Result, error)
	deliverFn func(ctx context.Context, input shipments.DeliverInput) (*shipments.Result, error)
}

func (s stubShipments) Create(ctx context.Context, input shipments.CreateInput) (*shipments.Result, error) {
	return s.createFn(ctx, input)
}

func (s stubShipments) Deliver(ctx context.Context, input shipments.DeliverInput) (*shipments.Result, error) {
	return s.deliverFn(ctx, input)
}

type stubWarrantyAdmin struct {
	suspendFn   func(ctx context.Context, input warranties.AdminStatusInput) (*models.Warranty, error)
	unsuspendFn func(ctx context.Context, input warranties.AdminStatusInput) (*models.Warranty, error)
	eventsFn    func(ctx context.Context, publicID string, params pagination.Params) (*warranties.EventPage, error)
}

func (s stubWarrantyAdmin) Suspend(ctx context.Context, input warranties.AdminStatusInput) (*models.Warranty, error) {
	return s.suspendFn(ctx, input)
}

func (s stubWarrantyAdmin) Unsuspend(ctx context.Context, input warranties.AdminStatusInput) (*models.Warranty, error) {
	return s.unsuspendFn(ctx, input)
}

func (s stubWarrantyAdmin) ListEvents(ctx context.Context, publicID string, params pagination.Params) (*warranties.EventPage, error) {
	return s.eventsFn(ctx, publicID, params)
}

type stubStock struct {
	fn func(ctx context.Context, input stock.CorrectionInput) (*models.StockUnit, error)
}

func (s stubStock) Correct(ctx context.Context, input stock.CorrectionInput) (*models.StockUnit, error) {
	return s.fn(ctx, input)
}

func asAdmin(req *http.Request, adminID uuid.UUID) *http.Request {
	return asUser(req, adminID, string(enums.RoleAdmin))
}

func TestAdminRefundUsesIdempotencyKey(t *testing.T) {
	adminID := uuid.New()
	svc := stubRefunds{fn: func(ctx context.Context, input refunds.Input) (*refunds.Result, error) {
		if input.IdempotencyKey != "refund-1" || input.AdminID != adminID {
			t.Fatalf("unexpected input %+v", input)
		}
		if input.WarrantyPublicID != "PM-W-1" || input.Reason != "damaged" {
			t.Fatalf("unexpected input %+v", input)
		}
		return &refunds.Result{RefundEventID: input.IdempotencyKey, Amount: decimal.NewFromInt(129000)}, nil
	}}

	req := newRequest(http.MethodPost, "/api/admin/refunds", `{"warranty_public_id":"PM-W-1","reason":"damaged"}`)
	req.Header.Set("Idempotency-Key", "refund-1")
	resp := serve(AdminRefund(svc, nil), asAdmin(req, adminID))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if result := decodeData[refunds.Result](t, resp); result.RefundEventID != "refund-1" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestAdminRefundReplayAnswers200(t *testing.T) {
	svc := stubRefunds{fn: func(ctx context.Context, input refunds.Input) (*refunds.Result, error) {
		return &refunds.Result{RefundEventID: input.IdempotencyKey, AlreadyRefunded: true}, nil
	}}
	req := newRequest(http.MethodPost, "/api/admin/refunds", `{"warranty_public_id":"PM-W-1","reason":"damaged"}`)
	req.Header.Set("Idempotency-Key", "refund-1")
	resp := serve(AdminRefund(svc, nil), asAdmin(req, uuid.New()))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestAdminRefundRequiresKey(t *testing.T) {
	svc := stubRefunds{fn: func(ctx context.Context, input refunds.Input) (*refunds.Result, error) {
		t.Fatalf("refund must not run without a key")
		return nil, nil
	}}
	req := newRequest(http.MethodPost, "/api/admin/refunds", `{"warranty_public_id":"PM-W-1","reason":"damaged"}`)
	resp := serve(AdminRefund(svc, nil), asAdmin(req, uuid.New()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminCreateShipment(t *testing.T) {
	orderID := uuid.New()
	unitA, unitB := uuid.New(), uuid.New()
	svc := stubShipments{createFn: func(ctx context.Context, input shipments.CreateInput) (*shipments.Result, error) {
		if input.OrderID != orderID || input.CarrierCode != "CJ" || input.TrackingNumber != "123" {
			t.Fatalf("unexpected input %+v", input)
		}
		if len(input.UnitIDs) != 2 || input.UnitIDs[0] != unitA || input.UnitIDs[1] != unitB {
			t.Fatalf("unexpected units %v", input.UnitIDs)
		}
		return &shipments.Result{OrderID: orderID, UnitIDs: input.UnitIDs, OrderStatus: enums.OrderStatusShipped}, nil
	}}
	body := `{"carrier_code":"CJ","tracking_number":"123","unit_ids":["` + unitA.String() + `","` + unitB.String() + `"]}`
	req := withURLParams(newRequest(http.MethodPost, "/", body), map[string]string{"orderId": orderID.String()})

	resp := serve(AdminCreateShipment(svc, nil), asAdmin(req, uuid.New()))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if result := decodeData[shipments.Result](t, resp); result.OrderStatus != enums.OrderStatusShipped {
		t.Fatalf("unexpected status %s", result.OrderStatus)
	}
}

func TestAdminCreateShipmentRejectsBadUnitID(t *testing.T) {
	svc := stubShipments{createFn: func(ctx context.Context, input shipments.CreateInput) (*shipments.Result, error) {
		t.Fatalf("shipment must not be created")
		return nil, nil
	}}
	body := `{"carrier_code":"CJ","tracking_number":"123","unit_ids":["not-a-uuid"]}`
	req := withURLParams(newRequest(http.MethodPost, "/", body), map[string]string{"orderId": uuid.NewString()})
	resp := serve(AdminCreateShipment(svc, nil), asAdmin(req, uuid.New()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminDeliver(t *testing.T) {
	orderID := uuid.New()
	unit := uuid.New()
	svc := stubShipments{deliverFn: func(ctx context.Context, input shipments.DeliverInput) (*shipments.Result, error) {
		if input.OrderID != orderID || len(input.UnitIDs) != 1 || input.UnitIDs[0] != unit {
			t.Fatalf("unexpected input %+v", input)
		}
		return &shipments.Result{OrderID: orderID, OrderStatus: enums.OrderStatusDelivered}, nil
	}}
	req := withURLParams(newRequest(http.MethodPost, "/", `{"unit_ids":["`+unit.String()+`"]}`), map[string]string{"orderId": orderID.String()})
	resp := serve(AdminDeliver(svc, nil), asAdmin(req, uuid.New()))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestAdminSuspendAndUnsuspend(t *testing.T) {
	var calls []string
	svc := stubWarrantyAdmin{
		suspendFn: func(ctx context.Context, input warranties.AdminStatusInput) (*models.Warranty, error) {
			calls = append(calls, "suspend:"+input.PublicID+":"+input.Reason)
			return &models.Warranty{PublicID: input.PublicID, Status: enums.WarrantyStatusSuspended}, nil
		},
		unsuspendFn: func(ctx context.Context, input warranties.AdminStatusInput) (*models.Warranty, error) {
			calls = append(calls, "unsuspend:"+input.PublicID+":"+input.Reason)
			return &models.Warranty{PublicID: input.PublicID, Status: enums.WarrantyStatusActive}, nil
		},
	}

	req := withURLParams(newRequest(http.MethodPost, "/", `{"reason":"fraud check"}`), map[string]string{"publicId": "PM-W-1"})
	if resp := serve(AdminSuspendWarranty(svc, nil), asAdmin(req, uuid.New())); resp.Code != http.StatusOK {
		t.Fatalf("suspend: expected 200 got %d", resp.Code)
	}
	req = withURLParams(newRequest(http.MethodPost, "/", `{"reason":"cleared"}`), map[string]string{"publicId": "PM-W-1"})
	if resp := serve(AdminUnsuspendWarranty(svc, nil), asAdmin(req, uuid.New())); resp.Code != http.StatusOK {
		t.Fatalf("unsuspend: expected 200 got %d", resp.Code)
	}
	if len(calls) != 2 || calls[0] != "suspend:PM-W-1:fraud check" || calls[1] != "unsuspend:PM-W-1:cleared" {
		t.Fatalf("unexpected calls %v", calls)
	}
}

func TestAdminSuspendRequiresReason(t *testing.T) {
	svc := stubWarrantyAdmin{suspendFn: func(ctx context.Context, input warranties.AdminStatusInput) (*models.Warranty, error) {
		t.Fatalf("suspend must not run")
		return nil, nil
	}}
	req := withURLParams(newRequest(http.MethodPost, "/", `{}`), map[string]string{"publicId": "PM-W-1"})
	resp := serve(AdminSuspendWarranty(svc, nil), asAdmin(req, uuid.New()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminWarrantyEventsPaging(t *testing.T) {
	svc := stubWarrantyAdmin{eventsFn: func(ctx context.Context, publicID string, params pagination.Params) (*warranties.EventPage, error) {
		if publicID != "PM-W-1" || params.Limit != 10 || params.Cursor != "abc" {
			t.Fatalf("unexpected args %s %+v", publicID, params)
		}
		return &warranties.EventPage{NextCursor: "def"}, nil
	}}
	req := withURLParams(newRequest(http.MethodGet, "/?limit=10&cursor=abc", ""), map[string]string{"publicId": "PM-W-1"})
	resp := serve(AdminWarrantyEvents(svc, nil), asAdmin(req, uuid.New()))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if page := decodeData[warranties.EventPage](t, resp); page.NextCursor != "def" {
		t.Fatalf("unexpected cursor %q", page.NextCursor)
	}
}

func TestAdminCorrectStock(t *testing.T) {
	unitID := uuid.New()
	svc := stubStock{fn: func(ctx context.Context, input stock.CorrectionInput) (*models.StockUnit, error) {
		if input.StockUnitID != unitID || input.Status != enums.StockStatusInStock || input.Reason != "recount" {
			t.Fatalf("unexpected input %+v", input)
		}
		return &models.StockUnit{ID: unitID, Status: enums.StockStatusInStock}, nil
	}}
	req := withURLParams(newRequest(http.MethodPost, "/", `{"status":"in_stock","reason":"recount"}`), map[string]string{"stockUnitId": unitID.String()})
	resp := serve(AdminCorrectStock(svc, nil), asAdmin(req, uuid.New()))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAdminCorrectStockRejectsUnknownStatus(t *testing.T) {
	svc := stubStock{fn: func(ctx context.Context, input stock.CorrectionInput) (*models.StockUnit, error) {
		t.Fatalf("correction must not run")
		return nil, nil
	}}
	req := withURLParams(newRequest(http.MethodPost, "/", `{"status":"lost","reason":"recount"}`), map[string]string{"stockUnitId": uuid.NewString()})
	resp := serve(AdminCorrectStock(svc, nil), asAdmin(req, uuid.New()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
