package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		expose    bool
		details   bool
	}{
		{CodeValidation, http.StatusBadRequest, false, true, true},
		{CodeUnauthorized, http.StatusUnauthorized, false, true, false},
		{CodeForbidden, http.StatusForbidden, false, true, false},
		{CodeNotFound, http.StatusNotFound, false, true, false},
		{CodeConflict, http.StatusConflict, false, true, false},
		{CodeStateConflict, http.StatusUnprocessableEntity, false, true, true},
		{CodeIdempotency, http.StatusConflict, false, true, true},
		{CodeRateLimit, http.StatusTooManyRequests, false, true, false},
		{CodeInternal, http.StatusInternalServerError, true, false, false},
		{CodeDependency, http.StatusServiceUnavailable, true, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			meta := MetadataFor(tt.code)
			assert.Equal(t, tt.status, meta.HTTPStatus)
			assert.Equal(t, tt.retryable, meta.Retryable)
			assert.Equal(t, tt.expose, meta.ExposeMessage)
			assert.Equal(t, tt.details, meta.DetailsAllowed)
			assert.NotEmpty(t, meta.PublicMessage)
		})
	}
	assert.Equal(t, 5*time.Second, MetadataFor(CodeDependency).RetryAfter)
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, MetadataFor("SOMETHING_UNKNOWN").HTTPStatus)
}

func TestErrorStringIncludesCause(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: order not found", New(CodeNotFound, "order not found").Error())

	cause := stdErrors.New("connection refused")
	wrapped := Wrap(CodeDependency, cause, "load order")
	assert.Equal(t, "DEPENDENCY_ERROR: load order: connection refused", wrapped.Error())
	assert.True(t, stdErrors.Is(wrapped, cause))
	assert.Nil(t, Wrap(CodeConflict, nil, "dup").Unwrap())
}

func TestDetails(t *testing.T) {
	err := New(CodeValidation, "missing order_id")
	assert.Nil(t, err.Details())
	err.WithDetails(map[string]any{"field": "order_id"})
	assert.Equal(t, map[string]any{"field": "order_id"}, err.Details())

	var nilErr *Error
	assert.Nil(t, nilErr.WithDetails("x"))
	assert.Equal(t, CodeInternal, nilErr.Code())
}

func TestIsAndAsFollowTheChain(t *testing.T) {
	inner := New(CodeStateConflict, "order not delivered")
	outer := fmt.Errorf("confirm: %w", inner)

	assert.True(t, Is(outer, CodeStateConflict))
	assert.False(t, Is(outer, CodeNotFound))
	assert.False(t, Is(stdErrors.New("plain"), CodeInternal))
	assert.Same(t, inner, As(outer))
	assert.Nil(t, As(nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(New(CodeDependency, "gateway down")))
	assert.True(t, Retryable(stdErrors.New("untyped")))
	assert.False(t, Retryable(New(CodeValidation, "bad")))
	assert.False(t, Retryable(nil))
}

func TestPreconditionCarriesDetails(t *testing.T) {
	err := Precondition("pickup not received", map[string]any{"required_stage": "item_received"})
	require.Equal(t, CodeStateConflict, err.Code())
	details, ok := err.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "item_received", details["required_stage"])
}

func TestDumpExtractsPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "orders_payment_seller_key", TableName: "orders", Message: "duplicate key"}
	err := Wrap(CodeConflict, fmt.Errorf("insert order: %w", pgErr), "order exists")

	dump := Dump(err)
	assert.Equal(t, CodeConflict, dump.Code)
	assert.Equal(t, "23505", dump.DBCode)
	assert.Equal(t, "orders_payment_seller_key", dump.DBConstraint)
	assert.Len(t, dump.Chain, 3)

	fields := dump.Fields()
	assert.Equal(t, "orders", fields["db_table"])
	assert.Equal(t, "CONFLICT", fields["error_code"])
	assert.NotContains(t, fields, "db_column")
}

func TestDumpOfPlainError(t *testing.T) {
	fields := Dump(stdErrors.New("boom")).Fields()
	assert.Equal(t, "boom", fields["error"])
	assert.NotContains(t, fields, "error_code")
	assert.NotContains(t, fields, "db_code")
	assert.Empty(t, Dump(nil).TopMessage)
}
