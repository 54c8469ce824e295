package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"prostor/internal/admission"
	"prostor/internal/config"
	"prostor/internal/database"
	"prostor/internal/domain"
	"prostor/internal/metrics"
	"prostor/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPServer is the JSON surface over the admission coordinator. It owns no
// business rules: every decision is delegated to the reservation service.
type HTTPServer struct {
	cfg          *config.APIConfig
	reservations domain.ReservationService
	catalog      domain.SpaceCatalog
	auth         *HTTPAuth
	exportDir    string
	server       *http.Server
	logger       *zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, reservations domain.ReservationService, catalog domain.SpaceCatalog, exportDir string, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:          cfg,
		reservations: reservations,
		catalog:      catalog,
		auth:         NewHTTPAuth(cfg),
		exportDir:    exportDir,
		logger:       logger,
	}

	mux.HandleFunc("/api/v1/reservations", srv.handleReservations)
	mux.HandleFunc("/api/v1/reservations/", srv.handleReservationByID)
	mux.HandleFunc("/api/v1/spaces", srv.handleSpaces)
	mux.HandleFunc("/api/v1/availability/", srv.handleAvailability)
	mux.HandleFunc("/api/v1/reports/weekly", srv.handleWeeklyReport)
	mux.HandleFunc("/healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("x-request-id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("x-request-id", requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(r.URL.Path)
		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeErrorDetails(w, statusCode, code, message, nil)
}

func writeErrorDetails(w http.ResponseWriter, statusCode int, code, message string, details any) {
	body := map[string]any{"code": code, "error": message}
	if details != nil {
		body["details"] = details
	}
	writeJSON(w, statusCode, body)
}

// writeServiceError maps the admission error taxonomy onto HTTP statuses.
// Conflict and quota rejections stay distinguishable because they call for
// different remediation; guard timeouts are retryable and say so.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var conflictErr *admission.ConflictError
	var quotaErr *admission.QuotaExceededError

	switch {
	case errors.As(err, &conflictErr):
		writeErrorDetails(w, http.StatusConflict, "CONFLICT", conflictErr.Error(), map[string]string{
			"conflicting_reservation_id": conflictErr.ReservationID,
			"space_id":                   conflictErr.SpaceID,
		})
	case errors.As(err, &quotaErr):
		writeErrorDetails(w, http.StatusTooManyRequests, "QUOTA_EXCEEDED", quotaErr.Error(), map[string]any{
			"current":               quotaErr.Current,
			"max":                   quotaErr.Max,
			"existing_reservations": quotaErr.Existing,
		})
	case errors.Is(err, admission.ErrInvalidInterval),
		errors.Is(err, database.ErrSpaceNotFound),
		errors.Is(err, database.ErrStatusFinal):
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, repository.ErrGuardBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "TRANSIENT_UNAVAILABLE", err.Error())
	default:
		s.logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
