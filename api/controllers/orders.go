package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/campusmart/campusmart-backend/api/responses"
	"github.com/campusmart/campusmart-backend/api/validators"
	"github.com/campusmart/campusmart-backend/internal/orders"
	pkgerrors "github.com/campusmart/campusmart-backend/pkg/errors"
	"github.com/campusmart/campusmart-backend/pkg/logger"
)

type orderRef struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
}

// ConfirmDelivery lets the buyer release escrow for a delivered order.
func ConfirmDelivery(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "orders")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		var body orderRef
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ConfirmDelivery(r.Context(), orders.ConfirmInput{BuyerID: identity.UserID, OrderID: body.OrderID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ListOrders pages the caller's orders. ?as=seller switches to sales; riders
// default to their deliveries.
func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "orders")
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

		as := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("as")))
		if as == "" {
			as = "buyer"
			if identity.IsRider() {
				as = "rider"
			}
		}

		var result *orders.OrderPage
		switch as {
		case "buyer":
			result, err = svc.ListForBuyer(r.Context(), identity.UserID, page)
		case "seller":
			result, err = svc.ListForSeller(r.Context(), identity.UserID, page)
		case "rider":
			if !identity.IsRider() {
				err = pkgerrors.New(pkgerrors.CodeForbidden, "rider role required")
				break
			}
			result, err = svc.ListForRider(r.Context(), identity.UserID, page)
		default:
			err = pkgerrors.New(pkgerrors.CodeValidation, "as must be one of buyer, seller, rider").WithDetails(map[string]any{"field": "as"})
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GetOrder returns one order visible to the caller.
func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
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
		view, err := svc.Get(r.Context(), identity, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
