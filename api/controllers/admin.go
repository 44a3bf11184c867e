package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/prepmood/prepmood-backend/api/responses"
	"github.com/prepmood/prepmood-backend/api/validators"
	"github.com/prepmood/prepmood-backend/internal/refunds"
	"github.com/prepmood/prepmood-backend/internal/shipments"
	"github.com/prepmood/prepmood-backend/internal/stock"
	"github.com/prepmood/prepmood-backend/internal/warranties"
	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/logger"
	"github.com/prepmood/prepmood-backend/pkg/pagination"
)

const maxReasonLength = 500

type refundIssuer interface {
	Refund(ctx context.Context, input refunds.Input) (*refunds.Result, error)
}

type shipmentRecorder interface {
	Create(ctx context.Context, input shipments.CreateInput) (*shipments.Result, error)
	Deliver(ctx context.Context, input shipments.DeliverInput) (*shipments.Result, error)
}

type warrantyAdministrator interface {
	Suspend(ctx context.Context, input warranties.AdminStatusInput) (*models.Warranty, error)
	Unsuspend(ctx context.Context, input warranties.AdminStatusInput) (*models.Warranty, error)
	ListEvents(ctx context.Context, publicID string, params pagination.Params) (*warranties.EventPage, error)
}

type stockCorrector interface {
	Correct(ctx context.Context, input stock.CorrectionInput) (*models.StockUnit, error)
}

type adminRefundRequest struct {
	WarrantyPublicID string `json:"warranty_public_id" validate:"required,max=64"`
	Reason           string `json:"reason" validate:"required,max=500"`
}

// AdminRefund refunds the unit behind one warranty. The Idempotency-Key
// header doubles as the refund event id so retries never issue a second
// credit note.
func AdminRefund(svc refundIssuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if key == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
			return
		}
		var body adminRefundRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Refund(r.Context(), refunds.Input{
			WarrantyPublicID: strings.TrimSpace(body.WarrantyPublicID),
			AdminID:          adminID,
			Reason:           validators.SanitizeString(body.Reason, maxReasonLength),
			IdempotencyKey:   key,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if result.AlreadyRefunded {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

type createShipmentRequest struct {
	CarrierCode    string   `json:"carrier_code" validate:"required,max=32"`
	TrackingNumber string   `json:"tracking_number" validate:"required,max=64"`
	UnitIDs        []string `json:"unit_ids" validate:"required,min=1,max=100"`
}

func AdminCreateShipment(svc shipmentRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createShipmentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unitIDs, err := parseUUIDs(body.UnitIDs, "unit_ids")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), shipments.CreateInput{
			OrderID:        orderID,
			AdminID:        adminID,
			CarrierCode:    strings.TrimSpace(body.CarrierCode),
			TrackingNumber: strings.TrimSpace(body.TrackingNumber),
			UnitIDs:        unitIDs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type deliverRequest struct {
	UnitIDs []string `json:"unit_ids" validate:"required,min=1,max=100"`
}

func AdminDeliver(svc shipmentRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body deliverRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unitIDs, err := parseUUIDs(body.UnitIDs, "unit_ids")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Deliver(r.Context(), shipments.DeliverInput{
			OrderID: orderID,
			AdminID: adminID,
			UnitIDs: unitIDs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type warrantyStatusRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// AdminSuspendWarranty and AdminUnsuspendWarranty share a body and differ only
// in the transition they request.
func AdminSuspendWarranty(svc warrantyAdministrator, logg *logger.Logger) http.HandlerFunc {
	return warrantyStatusHandler(svc.Suspend, logg)
}

func AdminUnsuspendWarranty(svc warrantyAdministrator, logg *logger.Logger) http.HandlerFunc {
	return warrantyStatusHandler(svc.Unsuspend, logg)
}

func warrantyStatusHandler(apply func(context.Context, warranties.AdminStatusInput) (*models.Warranty, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		publicID, err := pathString(r, "publicId", "warranty id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body warrantyStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		warranty, err := apply(r.Context(), warranties.AdminStatusInput{
			PublicID: publicID,
			AdminID:  adminID,
			Reason:   validators.SanitizeString(body.Reason, maxReasonLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"public_id":  warranty.PublicID,
			"status":     warranty.Status,
			"updated_at": warranty.UpdatedAt,
		})
	}
}

func AdminWarrantyEvents(svc warrantyAdministrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		publicID, err := pathString(r, "publicId", "warranty id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListEvents(r.Context(), publicID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

type stockCorrectionRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"required,max=500"`
}

func AdminCorrectStock(svc stockCorrector, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unitID, err := pathUUID(r, "stockUnitId", "stock unit id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body stockCorrectionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseStockStatus(strings.TrimSpace(body.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stock status"))
			return
		}

		unit, err := svc.Correct(r.Context(), stock.CorrectionInput{
			StockUnitID: unitID,
			Status:      status,
			Reason:      validators.SanitizeString(body.Reason, maxReasonLength),
			AdminID:     adminID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, unit)
	}
}
