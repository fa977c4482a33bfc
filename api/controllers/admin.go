package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/campusmart/campusmart-backend/api/responses"
	"github.com/campusmart/campusmart-backend/api/validators"
	"github.com/campusmart/campusmart-backend/internal/disputes"
	"github.com/campusmart/campusmart-backend/internal/ledger"
	"github.com/campusmart/campusmart-backend/internal/orders"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	pkgerrors "github.com/campusmart/campusmart-backend/pkg/errors"
	"github.com/campusmart/campusmart-backend/pkg/logger"
)

type penaltyRequest struct {
	Type   string `json:"type" validate:"required,oneof=warning suspension ban"`
	Reason string `json:"reason" validate:"max=500"`
}

type resolveRequest struct {
	Status       string           `json:"status" validate:"required"`
	Resolution   string           `json:"resolution" validate:"max=2000"`
	AdminNote    string           `json:"admin_note" validate:"max=2000"`
	RefundAmount *decimal.Decimal `json:"refund_amount" validate:"omitempty,gte=0"`
	Penalty      *penaltyRequest  `json:"penalty"`
}

type pickupRequest struct {
	Action string `json:"action" validate:"required,oneof=send_rider confirm_received release_refund release_rider_pay"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// AdminListDisputes pages every dispute, optionally filtered by ?status=.
func AdminListDisputes(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "disputes")
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var status *enums.DisputeStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseDisputeStatus(strings.ToUpper(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").WithDetails(map[string]any{"field": "status"}))
				return
			}
			status = &parsed
		}
		result, err := svc.ListAdmin(r.Context(), status, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminResolveDispute applies a direct resolution, optionally refunding the buyer.
func AdminResolveDispute(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "disputes")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		disputeID, err := validators.ParseURLUUID(r, "disputeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body resolveRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseDisputeStatus(strings.ToUpper(strings.TrimSpace(body.Status)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").WithDetails(map[string]any{"field": "status"}))
			return
		}
		input := disputes.ResolveInput{
			AdminID:      identity.UserID,
			DisputeID:    disputeID,
			Status:       status,
			Resolution:   body.Resolution,
			AdminNote:    body.AdminNote,
			RefundAmount: body.RefundAmount,
		}
		if body.Penalty != nil {
			input.Penalty = &disputes.PenaltyInput{Type: enums.PenaltyType(body.Penalty.Type), Reason: body.Penalty.Reason}
		}
		view, err := svc.Resolve(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// AdminDisputePickup advances the pickup-mediated refund one step.
func AdminDisputePickup(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "disputes")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		disputeID, err := validators.ParseURLUUID(r, "disputeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body pickupRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Pickup(r.Context(), disputes.PickupInput{
			AdminID:   identity.UserID,
			DisputeID: disputeID,
			Action:    enums.PickupAction(body.Action),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func AdminCancelOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "orders")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseURLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body cancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		view, err := svc.CancelOrder(r.Context(), orders.CancelInput{
			AdminID: identity.UserID,
			OrderID: orderID,
			Reason:  validators.SanitizeString(body.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// AdminReconcileLedger replays a user's ledger against their stored balances.
func AdminReconcileLedger(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "ledger")
			return
		}
		userID, err := validators.ParseURLUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Replay(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
