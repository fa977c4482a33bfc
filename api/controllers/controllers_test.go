package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmart/campusmart-backend/api/middleware"
	"github.com/campusmart/campusmart-backend/internal/checkout"
	"github.com/campusmart/campusmart-backend/internal/checkout/helpers"
	"github.com/campusmart/campusmart-backend/internal/disputes"
	"github.com/campusmart/campusmart-backend/internal/orders"
	"github.com/campusmart/campusmart-backend/internal/users"
	"github.com/campusmart/campusmart-backend/pkg/db/models"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	pkgerrors "github.com/campusmart/campusmart-backend/pkg/errors"
	"github.com/campusmart/campusmart-backend/pkg/pagination"
)

type stubDisputes struct {
	disputes.Service
	resolved *disputes.ResolveInput
	pickup   *disputes.PickupInput
}

func (s *stubDisputes) Resolve(_ context.Context, input disputes.ResolveInput) (*disputes.DisputeView, error) {
	s.resolved = &input
	return &disputes.DisputeView{ID: input.DisputeID, Status: input.Status}, nil
}

func (s *stubDisputes) Pickup(_ context.Context, input disputes.PickupInput) (*disputes.DisputeView, error) {
	s.pickup = &input
	return &disputes.DisputeView{ID: input.DisputeID}, nil
}

type stubCheckout struct {
	err error
}

func (s stubCheckout) Initialize(context.Context, checkout.InitializeInput) (*checkout.InitializeResult, error) {
	return nil, nil
}

func (s stubCheckout) Verify(_ context.Context, reference string) (*checkout.VerifyResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &checkout.VerifyResult{Reference: reference}, nil
}

type stubOrders struct {
	orders.Service
	listedAs string
}

func (s *stubOrders) ListForBuyer(context.Context, uuid.UUID, pagination.Params) (*orders.OrderPage, error) {
	s.listedAs = "buyer"
	return &orders.OrderPage{}, nil
}

func (s *stubOrders) ListForSeller(context.Context, uuid.UUID, pagination.Params) (*orders.OrderPage, error) {
	s.listedAs = "seller"
	return &orders.OrderPage{}, nil
}

func (s *stubOrders) ListForRider(context.Context, uuid.UUID, pagination.Params) (*orders.OrderPage, error) {
	s.listedAs = "rider"
	return &orders.OrderPage{}, nil
}

func withActor(req *http.Request, role enums.UserRole) (*http.Request, users.Identity) {
	identity := users.Identity{UserID: uuid.New(), Role: role}
	return req.WithContext(middleware.WithIdentity(req.Context(), identity)), identity
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestAdminResolveDisputeMapsBody(t *testing.T) {
	svc := &stubDisputes{}
	disputeID := uuid.New()
	body := `{"status":"resolved_compromise","resolution":"split","refund_amount":"1000.00","penalty":{"type":"warning","reason":"late"}}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = withURLParam(req, "disputeId", disputeID.String())
	req, admin := withActor(req, enums.UserRoleAdmin)

	rec := httptest.NewRecorder()
	AdminResolveDispute(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NotNil(t, svc.resolved)
	assert.Equal(t, admin.UserID, svc.resolved.AdminID)
	assert.Equal(t, disputeID, svc.resolved.DisputeID)
	assert.Equal(t, enums.DisputeStatusResolvedCompromise, svc.resolved.Status)
	require.NotNil(t, svc.resolved.RefundAmount)
	assert.Equal(t, "1000", svc.resolved.RefundAmount.String())
	require.NotNil(t, svc.resolved.Penalty)
	assert.Equal(t, enums.PenaltyTypeWarning, svc.resolved.Penalty.Type)
}

func TestAdminResolveDisputeRejectsUnknownStatus(t *testing.T) {
	svc := &stubDisputes{}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"maybe"}`))
	req = withURLParam(req, "disputeId", uuid.NewString())
	req, _ = withActor(req, enums.UserRoleAdmin)

	rec := httptest.NewRecorder()
	AdminResolveDispute(svc, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.resolved)
}

func TestAdminDisputePickupValidatesAction(t *testing.T) {
	svc := &stubDisputes{}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"teleport"}`))
	req = withURLParam(req, "disputeId", uuid.NewString())
	req, _ = withActor(req, enums.UserRoleAdmin)
	rec := httptest.NewRecorder()
	AdminDisputePickup(svc, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"send_rider"}`))
	req = withURLParam(req, "disputeId", uuid.NewString())
	req, _ = withActor(req, enums.UserRoleAdmin)
	rec = httptest.NewRecorder()
	AdminDisputePickup(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.PickupActionSendRider, svc.pickup.Action)
}

func TestPaymentsVerifyRedirectsBrowsers(t *testing.T) {
	handler := PaymentsVerify(stubCheckout{}, "https://shop.example/", nil)
	req := httptest.NewRequest(http.MethodGet, "/payments/verify?reference=CM-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://shop.example/orders?payment=success&reference=CM-1", rec.Header().Get("Location"))

	failing := PaymentsVerify(stubCheckout{err: pkgerrors.New(pkgerrors.CodeStateConflict, "amount mismatch")}, "https://shop.example", nil)
	rec = httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/verify?reference=CM-2", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "payment=failed")
	assert.Contains(t, rec.Header().Get("Location"), "reason=state_conflict")

	outOfStock := helpers.ValidateLine(&models.Product{Name: "Desk lamp", IsActive: true, Quantity: 1}, uuid.New(), "", 3)
	require.Error(t, outOfStock)
	rejected := PaymentsVerify(stubCheckout{err: outOfStock}, "https://shop.example", nil)
	rec = httptest.NewRecorder()
	rejected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/verify?reference=CM-4", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/checkout/error", location.Path)
	assert.Equal(t, "Desk lamp", location.Query().Get("product"))
	assert.Equal(t, helpers.ReasonInsufficient, location.Query().Get("reason"))
	assert.Equal(t, "CM-4", location.Query().Get("reference"))
}

func TestPaymentsVerifyJSON(t *testing.T) {
	handler := PaymentsVerify(stubCheckout{}, "", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/verify?trxref=CM-3", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data checkout.VerifyResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, "CM-3", envelope.Data.Reference)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/verify", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOrdersPerspective(t *testing.T) {
	cases := []struct {
		role  enums.UserRole
		query string
		want  string
		code  int
	}{
		{enums.UserRoleUser, "", "buyer", http.StatusOK},
		{enums.UserRoleUser, "?as=seller", "seller", http.StatusOK},
		{enums.UserRoleRider, "", "rider", http.StatusOK},
		{enums.UserRoleUser, "?as=rider", "", http.StatusForbidden},
		{enums.UserRoleUser, "?as=owner", "", http.StatusBadRequest},
	}
	for _, tc := range cases {
		svc := &stubOrders{}
		req, _ := withActor(httptest.NewRequest(http.MethodGet, "/api/v1/orders"+tc.query, nil), tc.role)
		rec := httptest.NewRecorder()
		ListOrders(svc, nil).ServeHTTP(rec, req)
		assert.Equal(t, tc.code, rec.Code, "%s%s", tc.role, tc.query)
		assert.Equal(t, tc.want, svc.listedAs, "%s%s", tc.role, tc.query)
	}
}

func TestHandlersRequireIdentity(t *testing.T) {
	rec := httptest.NewRecorder()
	WalletBalances(nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	ListOrders(&stubOrders{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
