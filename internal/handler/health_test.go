package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: refused") }

	tests := []struct {
		name       string
		checks     map[string]Check
		wantStatus int
		wantChecks map[string]any
	}{
		{"all up", map[string]Check{"database": ok}, http.StatusOK, map[string]any{"database": "ok"}},
		{"database down", map[string]Check{"database": down, "cache": ok}, http.StatusServiceUnavailable,
			map[string]any{"database": "down", "cache": "ok"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			NewHealthHandler(tc.checks).Readiness(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tc.wantStatus, rr.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tc.wantChecks, body["checks"])
		})
	}
}

func TestServeSpec_ETag(t *testing.T) {
	h := ServeSpec([]byte("openapi: 3.0.3\n"))

	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	etag := rr.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil)
	req.Header.Set("If-None-Match", etag)
	rr = httptest.NewRecorder()
	h(rr, req)
	assert.Equal(t, http.StatusNotModified, rr.Code)
}
