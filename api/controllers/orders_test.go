package controllers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/prepmood/prepmood-backend/api/middleware"
	"github.com/prepmood/prepmood-backend/internal/claims"
	"github.com/prepmood/prepmood-backend/internal/orders"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
)

type stubOrderViews struct {
	ownerFn func(ctx context.Context, orderID, userID uuid.UUID) (*orders.StatusView, error)
	guestFn func(ctx context.Context, orderID uuid.UUID) (*orders.StatusView, error)
}

func (s stubOrderViews) StatusForOwner(ctx context.Context, orderID, userID uuid.UUID) (*orders.StatusView, error) {
	if s.ownerFn != nil {
		return s.ownerFn(ctx, orderID, userID)
	}
	return &orders.StatusView{OrderID: orderID}, nil
}

func (s stubOrderViews) StatusForGuest(ctx context.Context, orderID uuid.UUID) (*orders.StatusView, error) {
	if s.guestFn != nil {
		return s.guestFn(ctx, orderID)
	}
	return &orders.StatusView{OrderID: orderID, Guest: true}, nil
}

type stubClaims struct {
	verifyFn func(ctx context.Context, orderID uuid.UUID, token string) error
	issueFn  func(ctx context.Context, orderID uuid.UUID, guestToken string) (*claims.IssuedToken, error)
	claimFn  func(ctx context.Context, input claims.ClaimInput) (*claims.ClaimResult, error)
}

func (s stubClaims) VerifyGuestAccess(ctx context.Context, orderID uuid.UUID, token string) error {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, orderID, token)
	}
	return nil
}

func (s stubClaims) IssueClaimToken(ctx context.Context, orderID uuid.UUID, guestToken string) (*claims.IssuedToken, error) {
	if s.issueFn != nil {
		return s.issueFn(ctx, orderID, guestToken)
	}
	return &claims.IssuedToken{Token: "claim", ExpiresAt: time.Now().Add(10 * time.Minute)}, nil
}

func (s stubClaims) Claim(ctx context.Context, input claims.ClaimInput) (*claims.ClaimResult, error) {
	if s.claimFn != nil {
		return s.claimFn(ctx, input)
	}
	return &claims.ClaimResult{OrderID: input.OrderID, UserID: input.UserID}, nil
}

func TestOrderStatusOwner(t *testing.T) {
	orderID := uuid.New()
	userID := uuid.New()
	views := stubOrderViews{
		ownerFn: func(ctx context.Context, gotOrder, gotUser uuid.UUID) (*orders.StatusView, error) {
			if gotOrder != orderID || gotUser != userID {
				t.Fatalf("unexpected ids %s %s", gotOrder, gotUser)
			}
			return &orders.StatusView{OrderID: orderID, Status: enums.OrderStatusPaid}, nil
		},
		guestFn: func(ctx context.Context, orderID uuid.UUID) (*orders.StatusView, error) {
			t.Fatalf("guest path should not run for an authenticated caller")
			return nil, nil
		},
	}

	req := withURLParams(newRequest(http.MethodGet, "/", ""), map[string]string{"orderId": orderID.String()})
	resp := serve(OrderStatus(views, stubClaims{}, nil), asUser(req, userID, string(enums.RoleCustomer)))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	view := decodeData[orders.StatusView](t, resp)
	if view.Status != enums.OrderStatusPaid {
		t.Fatalf("unexpected status %s", view.Status)
	}
}

func TestOrderStatusGuestHeaderAndQuery(t *testing.T) {
	orderID := uuid.New()
	var seen []string
	guests := stubClaims{
		verifyFn: func(ctx context.Context, id uuid.UUID, token string) error {
			seen = append(seen, token)
			return nil
		},
	}
	handler := OrderStatus(stubOrderViews{}, guests, nil)

	req := withURLParams(newRequest(http.MethodGet, "/", ""), map[string]string{"orderId": orderID.String()})
	req.Header.Set(middleware.GuestTokenHeader, "from-header")
	if resp := serve(handler, req); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	req = withURLParams(newRequest(http.MethodGet, "/?token=from-query", ""), map[string]string{"orderId": orderID.String()})
	resp := serve(handler, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if view := decodeData[orders.StatusView](t, resp); !view.Guest {
		t.Fatalf("expected guest view")
	}
	if len(seen) != 2 || seen[0] != "from-header" || seen[1] != "from-query" {
		t.Fatalf("unexpected tokens %v", seen)
	}
}

func TestOrderStatusRequiresSomeCredential(t *testing.T) {
	req := withURLParams(newRequest(http.MethodGet, "/", ""), map[string]string{"orderId": uuid.NewString()})
	resp := serve(OrderStatus(stubOrderViews{}, stubClaims{}, nil), req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestOrderStatusRejectedGuestToken(t *testing.T) {
	guests := stubClaims{
		verifyFn: func(ctx context.Context, orderID uuid.UUID, token string) error {
			return pkgerrors.New(pkgerrors.CodeForbidden, "guest access token invalid")
		},
	}
	req := withURLParams(newRequest(http.MethodGet, "/?token=stale", ""), map[string]string{"orderId": uuid.NewString()})
	resp := serve(OrderStatus(stubOrderViews{}, guests, nil), req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestOrderStatusInvalidOrderID(t *testing.T) {
	req := withURLParams(newRequest(http.MethodGet, "/", ""), map[string]string{"orderId": "nope"})
	resp := serve(OrderStatus(stubOrderViews{}, stubClaims{}, nil), req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestOrderClaimToken(t *testing.T) {
	orderID := uuid.New()
	svc := stubClaims{
		issueFn: func(ctx context.Context, id uuid.UUID, guestToken string) (*claims.IssuedToken, error) {
			if id != orderID || guestToken != "guest" {
				t.Fatalf("unexpected input %s %q", id, guestToken)
			}
			return &claims.IssuedToken{Token: "claim-token"}, nil
		},
	}
	req := withURLParams(newRequest(http.MethodPost, "/", ""), map[string]string{"orderId": orderID.String()})
	req.Header.Set(middleware.GuestTokenHeader, "guest")

	resp := serve(OrderClaimToken(svc, nil), req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	if issued := decodeData[claims.IssuedToken](t, resp); issued.Token != "claim-token" {
		t.Fatalf("unexpected token %q", issued.Token)
	}
}

func TestOrderClaimTokenMissingGuestToken(t *testing.T) {
	req := withURLParams(newRequest(http.MethodPost, "/", ""), map[string]string{"orderId": uuid.NewString()})
	resp := serve(OrderClaimToken(stubClaims{}, nil), req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestOrderClaim(t *testing.T) {
	orderID := uuid.New()
	userID := uuid.New()
	svc := stubClaims{
		claimFn: func(ctx context.Context, input claims.ClaimInput) (*claims.ClaimResult, error) {
			if input.OrderID != orderID || input.UserID != userID || input.Token != "claim-token" {
				t.Fatalf("unexpected input %+v", input)
			}
			return &claims.ClaimResult{OrderID: orderID, UserID: userID, WarrantiesAssigned: 2}, nil
		},
	}
	req := withURLParams(newRequest(http.MethodPost, "/", `{"token":" claim-token "}`), map[string]string{"orderId": orderID.String()})

	resp := serve(OrderClaim(svc, nil), asUser(req, userID, string(enums.RoleCustomer)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if result := decodeData[claims.ClaimResult](t, resp); result.WarrantiesAssigned != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestOrderClaimRequiresAuth(t *testing.T) {
	req := withURLParams(newRequest(http.MethodPost, "/", `{"token":"x"}`), map[string]string{"orderId": uuid.NewString()})
	resp := serve(OrderClaim(stubClaims{}, nil), req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestOrderClaimRejectsUnknownFields(t *testing.T) {
	req := withURLParams(newRequest(http.MethodPost, "/", `{"token":"x","user_id":"someone"}`), map[string]string{"orderId": uuid.NewString()})
	resp := serve(OrderClaim(stubClaims{}, nil), asUser(req, uuid.New(), string(enums.RoleCustomer)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
