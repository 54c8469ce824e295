package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"prostor/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthConfig() *config.APIConfig {
	return &config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: "full-access", Name: "admin", Permissions: []string{"read:reservations", "write:reservations", "read:spaces"}},
				{Key: "read-only", Name: "dashboard", Permissions: []string{"read:reservations", "read:spaces"}},
				{Key: "legacy", Name: "legacy"},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 100, Burst: 100},
	}
}

func wrapOK(auth *HTTPAuth) http.Handler {
	return auth.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func doRequest(t *testing.T, handler http.Handler, method, path, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHTTPAuth(t *testing.T) {
	handler := wrapOK(NewHTTPAuth(newAuthConfig()))

	t.Run("MissingKey", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodGet, "/api/v1/reservations?from=2026-01-19&to=2026-01-25", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("InvalidKey", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodGet, "/api/v1/reservations?from=2026-01-19&to=2026-01-25", "wrong")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("ValidKey", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodGet, "/api/v1/reservations?from=2026-01-19&to=2026-01-25", "full-access")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ReadOnlyCannotWrite", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodPost, "/api/v1/reservations", "read-only")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = doRequest(t, handler, http.MethodGet, "/api/v1/reservations?from=2026-01-19&to=2026-01-25", "read-only")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("KeyWithoutPermissionListAllowsAll", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodPost, "/api/v1/reservations", "legacy")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("HealthzSkipsAuth", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("AuthDisabled", func(t *testing.T) {
		cfg := newAuthConfig()
		cfg.Auth.Enabled = false
		open := wrapOK(NewHTTPAuth(cfg))

		rec := doRequest(t, open, http.MethodGet, "/api/v1/reservations?from=2026-01-19&to=2026-01-25", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestHTTPAuthRateLimit(t *testing.T) {
	cfg := newAuthConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 1, Burst: 2}
	handler := wrapOK(NewHTTPAuth(cfg))

	path := "/api/v1/reservations?from=2026-01-19&to=2026-01-25"

	rec := doRequest(t, handler, http.MethodGet, path, "full-access")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, handler, http.MethodGet, path, "full-access")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, path, "full-access")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Limits are per key, so another client is unaffected.
	rec = doRequest(t, handler, http.MethodGet, path, "read-only")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequiredPermission(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/api/v1/reservations", "read:reservations"},
		{http.MethodPost, "/api/v1/reservations", "write:reservations"},
		{http.MethodPatch, "/api/v1/reservations/r1", "write:reservations"},
		{http.MethodDelete, "/api/v1/reservations/r1", "write:reservations"},
		{http.MethodPost, "/api/v1/reservations/r1/cancel", "write:reservations"},
		{http.MethodGet, "/api/v1/availability/sp-1", "read:reservations"},
		{http.MethodGet, "/api/v1/spaces", "read:spaces"},
		{http.MethodGet, "/metrics", ""},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		assert.Equal(t, tc.want, requiredPermission(req), "%s %s", tc.method, tc.path)
	}
}
