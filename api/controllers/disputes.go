package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/campusmart/campusmart-backend/api/responses"
	"github.com/campusmart/campusmart-backend/api/validators"
	"github.com/campusmart/campusmart-backend/internal/disputes"
	"github.com/campusmart/campusmart-backend/pkg/logger"
)

type openDisputeRequest struct {
	OrderID              uuid.UUID `json:"order_id" validate:"required"`
	Reason               string    `json:"reason" validate:"required,max=2000"`
	ResolutionPreference string    `json:"resolution_preference" validate:"max=200"`
}

type messageRequest struct {
	Body string `json:"body" validate:"required,max=2000"`
}

func OpenDispute(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "disputes")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		var body openDisputeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Open(r.Context(), disputes.OpenInput{
			BuyerID:              identity.UserID,
			OrderID:              body.OrderID,
			Reason:               body.Reason,
			ResolutionPreference: body.ResolutionPreference,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// ListMyDisputes pages the disputes the caller opened.
func ListMyDisputes(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "disputes")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ListForBuyer(r.Context(), identity.UserID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GetDispute serves both the buyer route and the admin route; visibility is
// enforced by the service.
func GetDispute(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
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
		view, err := svc.Get(r.Context(), identity, disputeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func ListDisputeMessages(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
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
		messages, err := svc.ListMessages(r.Context(), identity, disputeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"messages": messages})
	}
}

func PostDisputeMessage(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
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
		var body messageRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		message, err := svc.PostMessage(r.Context(), identity, disputeID, body.Body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, message)
	}
}
