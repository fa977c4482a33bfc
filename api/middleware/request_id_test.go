package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRequestIDEchoesWellFormedIDs(t *testing.T) {
	handler := RequestID(nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "edge-7f3a:01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "edge-7f3a:01", rec.Header().Get(RequestIDHeader))
}

func TestRequestIDReplacesMalformedIDs(t *testing.T) {
	handler := RequestID(nil)(okHandler())
	for _, supplied := range []string{"", "has space", "new\nline", strings.Repeat("a", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, supplied)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		got := rec.Header().Get(RequestIDHeader)
		_, err := uuid.Parse(got)
		assert.NoError(t, err, "supplied %q produced %q", supplied, got)
	}
}
