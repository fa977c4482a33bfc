package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/campusmart/campusmart-backend/pkg/errors"
	"github.com/campusmart/campusmart-backend/pkg/pagination"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type openBody struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
	Reason  string `json:"reason" validate:"required,max=2000"`
}

func TestDecodeJSONBodyReportsJSONFieldNames(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"order_id":"nope","reason":""}`))
	var body openBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be a valid uuid", details["order_id"])
	assert.Equal(t, "is required", details["reason"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"order_id":"`+uuid.NewString()+`","reason":"x","extra":1}`))
	var body openBody
	assert.True(t, pkgerrors.Is(DecodeJSONBody(req, &body), pkgerrors.CodeValidation))
}

func TestParsePage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=10", nil)
	page, err := ParsePage(req)
	require.NoError(t, err)
	assert.Equal(t, 10, page.Limit)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	page, err = ParsePage(req)
	require.NoError(t, err)
	assert.Equal(t, pagination.DefaultLimit, page.Limit)

	req = httptest.NewRequest(http.MethodGet, "/?limit=1000", nil)
	_, err = ParsePage(req)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	req = httptest.NewRequest(http.MethodGet, "/?cursor=%25%25%25", nil)
	_, err = ParsePage(req)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestParseURLUUID(t *testing.T) {
	id := uuid.New()
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", id.String())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	got, err := ParseURLUUID(req, "orderId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseURLUUID(req, "disputeId")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

type lineBody struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

type cartBody struct {
	Items []lineBody `json:"items" validate:"min=1,dive"`
}

type moneyBody struct {
	Amount decimal.Decimal  `json:"amount" validate:"gt=0"`
	Refund *decimal.Decimal `json:"refund" validate:"omitempty,gte=0"`
}

func validationDetails(t *testing.T, err error) map[string]string {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok, "details %#v", typed.Details())
	return details
}

func TestDecodeJSONBodyReportsNestedPaths(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[{"product_id":"`+uuid.NewString()+`","quantity":0}]}`))
	var body cartBody
	details := validationDetails(t, DecodeJSONBody(req, &body))
	assert.Equal(t, "must be at least 1", details["items[0].quantity"])

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[]}`))
	details = validationDetails(t, DecodeJSONBody(req, &cartBody{}))
	assert.Equal(t, "must contain at least 1 item(s)", details["items"])
}

func TestDecodeJSONBodyComparesDecimals(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"0"}`))
	details := validationDetails(t, DecodeJSONBody(req, &moneyBody{}))
	assert.Equal(t, "must be greater than 0", details["amount"])

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"2500.50","refund":"-1"}`))
	details = validationDetails(t, DecodeJSONBody(req, &moneyBody{}))
	assert.Equal(t, "must be at least 0", details["refund"])

	var ok moneyBody
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"2500.50"}`))
	require.NoError(t, DecodeJSONBody(req, &ok))
	assert.True(t, ok.Amount.Equal(decimal.RequireFromString("2500.50")))
}

func TestDecodeJSONBodyMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":    ``,
		"syntax":   `{"order_id":`,
		"type":     `{"order_id":5,"reason":"x"}`,
		"trailing": `{"order_id":"` + uuid.NewString() + `","reason":"x"}{}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
			assert.True(t, pkgerrors.Is(DecodeJSONBody(req, &openBody{}), pkgerrors.CodeValidation))
		})
	}
}

func TestDecodeJSONBodyRejectsOversizedBody(t *testing.T) {
	huge := `{"order_id":"` + uuid.NewString() + `","reason":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(huge))
	err := DecodeJSONBody(req, &openBody{})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	assert.Equal(t, "request body too large", pkgerrors.As(err).Message())
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello \x00 ", 0))
	assert.Equal(t, "line one\nline two", SanitizeString("line one\nline two\x07", 0))
	assert.Equal(t, "héllo", SanitizeString("héllo wörld", 5))
	assert.Equal(t, "", SanitizeString("   ", 10))
}
