package controllers

import (
	"net/http"

	"github.com/campusmart/campusmart-backend/api/responses"
	"github.com/campusmart/campusmart-backend/api/validators"
	"github.com/campusmart/campusmart-backend/internal/checkout"
	"github.com/campusmart/campusmart-backend/pkg/logger"
)

type checkoutRequest struct {
	Items []checkout.LineInput `json:"items" validate:"required,min=1,max=50,dive"`
	Note  string               `json:"note" validate:"max=500"`
}

// CheckoutInitialize prices the cart and opens a payment reference.
func CheckoutInitialize(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "checkout")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}

		var body checkoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Initialize(r.Context(), checkout.InitializeInput{
			BuyerID: identity.UserID,
			Items:   body.Items,
			Note:    validators.SanitizeString(body.Note, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
