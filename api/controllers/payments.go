package controllers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/campusmart/campusmart-backend/api/responses"
	"github.com/campusmart/campusmart-backend/api/validators"
	"github.com/campusmart/campusmart-backend/internal/checkout"
	pkgerrors "github.com/campusmart/campusmart-backend/pkg/errors"
	"github.com/campusmart/campusmart-backend/pkg/logger"
)

const maxReferenceLen = 100

// PaymentsVerify is the gateway callback. Browsers are redirected back to the
// storefront; API clients asking for JSON get the verification result.
func PaymentsVerify(svc checkout.Service, frontendURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "checkout")
			return
		}
		reference := validators.SanitizeString(r.URL.Query().Get("reference"), maxReferenceLen)
		if reference == "" {
			reference = validators.SanitizeString(r.URL.Query().Get("trxref"), maxReferenceLen)
		}
		redirectTo := strings.TrimRight(strings.TrimSpace(frontendURL), "/")
		asJSON := redirectTo == "" || wantsJSON(r)

		if reference == "" {
			err := pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
			if asJSON {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			http.Redirect(w, r, paymentRedirect(redirectTo, "failed", "", "missing_reference"), http.StatusFound)
			return
		}

		result, err := svc.Verify(r.Context(), reference)
		if asJSON {
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, result)
			return
		}

		if err != nil {
			if logg != nil {
				logg.Error(logg.WithReference(r.Context(), reference), "payments.verify_failed", err)
			}
			http.Redirect(w, r, failureRedirect(redirectTo, reference, err), http.StatusFound)
			return
		}
		http.Redirect(w, r, paymentRedirect(redirectTo, "success", reference, ""), http.StatusFound)
	}
}

// failureRedirect sends line rejections to the checkout error page with the
// offending product and reason; every other failure lands on the orders page.
func failureRedirect(base, reference string, err error) string {
	reason := "verification_failed"
	typed := pkgerrors.As(err)
	if typed != nil {
		reason = strings.ToLower(string(typed.Code()))
	}
	details, _ := typed.Details().(map[string]any)
	product, _ := details["product"].(string)
	if product == "" {
		return paymentRedirect(base, "failed", reference, reason)
	}
	if detail, ok := details["reason"].(string); ok && detail != "" {
		reason = detail
	}
	q := url.Values{}
	q.Set("reason", reason)
	q.Set("product", product)
	q.Set("reference", reference)
	return base + "/checkout/error?" + q.Encode()
}

func wantsJSON(r *http.Request) bool {
	if strings.EqualFold(r.URL.Query().Get("format"), "json") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func paymentRedirect(base, status, reference, reason string) string {
	q := url.Values{}
	q.Set("payment", status)
	if reference != "" {
		q.Set("reference", reference)
	}
	if reason != "" {
		q.Set("reason", reason)
	}
	return base + "/orders?" + q.Encode()
}
