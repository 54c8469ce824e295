package api

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"sync"

	"prostor/internal/config"

	"golang.org/x/time/rate"
)

const (
	permReadReservations  = "read:reservations"
	permWriteReservations = "write:reservations"
	permReadSpaces        = "read:spaces"
)

// HTTPAuth enforces API-key auth and per-client rate limiting.
type HTTPAuth struct {
	cfg             *config.APIConfig
	clientsByAPIKey map[string]config.APIClientKey
	limiters        sync.Map
}

func NewHTTPAuth(cfg *config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clientsByAPIKey: m}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
				return
			}
		}

		if !a.allow(r) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type authError string

func (e authError) Error() string { return string(e) }

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	header := strings.TrimSpace(a.cfg.Auth.HeaderAPIKey)
	if header == "" {
		header = "x-api-key"
	}

	apiKey := strings.TrimSpace(r.Header.Get(header))
	if apiKey == "" {
		return authError("missing api key")
	}

	client, ok := a.lookup(apiKey)
	if !ok {
		return authError("invalid api key")
	}

	required := requiredPermission(r)
	if required == "" || len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return authError("permission denied")
}

// lookup compares the presented key in constant time against every
// configured key, so key length and prefix leak nothing.
func (a *HTTPAuth) lookup(apiKey string) (config.APIClientKey, bool) {
	var found config.APIClientKey
	ok := false
	for key, client := range a.clientsByAPIKey {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			found = client
			ok = true
		}
	}
	return found, ok
}

func requiredPermission(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/reservations"):
		if r.Method == http.MethodGet {
			return permReadReservations
		}
		return permWriteReservations
	case strings.HasPrefix(path, "/api/v1/availability"),
		strings.HasPrefix(path, "/api/v1/reports"):
		return permReadReservations
	case path == "/api/v1/spaces":
		return permReadSpaces
	default:
		return ""
	}
}

func (a *HTTPAuth) allow(r *http.Request) bool {
	if a.cfg.RateLimit.RPS <= 0 {
		return true
	}
	return a.getLimiter(a.clientKey(r)).Allow()
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	header := strings.TrimSpace(a.cfg.Auth.HeaderAPIKey)
	if header == "" {
		header = "x-api-key"
	}
	if apiKey := strings.TrimSpace(r.Header.Get(header)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *HTTPAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}
