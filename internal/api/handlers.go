package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"prostor/internal/database"
	"prostor/internal/export"
	"prostor/internal/models"
	"prostor/internal/timeslot"
)

type createReservationRequest struct {
	SpaceID     string `json:"space_id"`
	ClientEmail string `json:"client_email"`
	Date        string `json:"date"`       // YYYY-MM-DD
	StartTime   string `json:"start_time"` // HH:MM
	EndTime     string `json:"end_time"`   // HH:MM
	Notes       string `json:"notes"`
}

type updateReservationRequest struct {
	Date      *string `json:"date"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Notes     *string `json:"notes"`
}

func (s *HTTPServer) handleReservations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createReservation(w, r)
	case http.MethodGet:
		s.listReservations(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func (s *HTTPServer) createReservation(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body")
		return
	}

	if req.SpaceID == "" || req.ClientEmail == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "space_id and client_email are required")
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid date; expected YYYY-MM-DD")
		return
	}
	start, err := parseDayTime(date, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid start_time; expected HH:MM")
		return
	}
	end, err := parseDayTime(date, req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid end_time; expected HH:MM")
		return
	}

	candidate := &models.Reservation{
		SpaceID:     req.SpaceID,
		ClientEmail: req.ClientEmail,
		Date:        date,
		StartTime:   start,
		EndTime:     end,
		Notes:       req.Notes,
	}

	created, err := s.reservations.CreateReservation(r.Context(), candidate)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) listReservations(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid from date; expected YYYY-MM-DD")
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid to date; expected YYYY-MM-DD")
		return
	}

	reservations, err := s.reservations.GetReservationsByDateRange(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": reservations})
}

func (s *HTTPServer) handleReservationByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/reservations/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found")
		return
	}

	switch {
	case action == "cancel" && r.Method == http.MethodPost:
		s.cancelReservation(w, r, id)
	case action != "":
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found")
	case r.Method == http.MethodGet:
		s.getReservation(w, r, id)
	case r.Method == http.MethodPatch:
		s.updateReservation(w, r, id)
	case r.Method == http.MethodDelete:
		s.deleteReservation(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func (s *HTTPServer) getReservation(w http.ResponseWriter, r *http.Request, id string) {
	reservation, err := s.reservations.GetReservation(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

func (s *HTTPServer) updateReservation(w http.ResponseWriter, r *http.Request, id string) {
	var req updateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body")
		return
	}

	patch, err := s.buildPatch(r, id, &req)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeServiceError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	updated, err := s.reservations.UpdateReservation(r.Context(), id, patch)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// buildPatch resolves the partial request against the stored reservation:
// start/end strings are clock times on the (possibly updated) date.
func (s *HTTPServer) buildPatch(r *http.Request, id string, req *updateReservationRequest) (*models.ReservationPatch, error) {
	patch := &models.ReservationPatch{Notes: req.Notes}
	if req.Date == nil && req.StartTime == nil && req.EndTime == nil {
		return patch, nil
	}

	existing, err := s.reservations.GetReservation(r.Context(), id)
	if err != nil {
		return nil, err
	}

	day := timeslot.DayOf(existing.Date)
	if req.Date != nil {
		day, err = parseDate(*req.Date)
		if err != nil {
			return nil, err
		}
		patch.Date = &day
	}

	start := onDay(existing.StartTime, day)
	if req.StartTime != nil {
		start, err = parseDayTime(day, *req.StartTime)
		if err != nil {
			return nil, err
		}
	}
	patch.StartTime = &start

	end := onDay(existing.EndTime, day)
	if req.EndTime != nil {
		end, err = parseDayTime(day, *req.EndTime)
		if err != nil {
			return nil, err
		}
	}
	patch.EndTime = &end

	return patch, nil
}

func (s *HTTPServer) cancelReservation(w http.ResponseWriter, r *http.Request, id string) {
	cancelled, err := s.reservations.CancelReservation(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

func (s *HTTPServer) deleteReservation(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.reservations.DeleteReservation(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleSpaces(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	spaces, err := s.catalog.GetActiveSpaces(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"spaces": spaces})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	spaceID := strings.TrimPrefix(r.URL.Path, "/api/v1/availability/")
	if spaceID == "" || strings.Contains(spaceID, "/") {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "space id is required")
		return
	}

	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid date; expected YYYY-MM-DD")
		return
	}

	if _, err := s.catalog.GetSpace(r.Context(), spaceID); err != nil {
		s.writeServiceError(w, err)
		return
	}

	reservations, err := s.reservations.GetReservationsByDateRange(r.Context(), date, date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	booked := make([]*models.Reservation, 0)
	for _, res := range reservations {
		if res.SpaceID == spaceID && res.IsActive() {
			booked = append(booked, res)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"space_id": spaceID,
		"date":     date.Format("2006-01-02"),
		"booked":   booked,
	})
}

// handleWeeklyReport renders the Monday-Sunday occupancy spreadsheet for the
// week containing the requested date.
func (s *HTTPServer) handleWeeklyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	week, err := parseDate(r.URL.Query().Get("week"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid week date; expected YYYY-MM-DD")
		return
	}
	weekStart, weekEnd := timeslot.WeekBounds(week)

	spaces, err := s.catalog.GetActiveSpaces(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	reservations, err := s.reservations.GetReservationsByDateRange(r.Context(), weekStart, weekEnd)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	if s.exportDir != "" {
		path, err := export.SaveWeeklyReport(s.exportDir, week, spaces, reservations)
		if err != nil {
			s.logger.Error().Err(err).Msg("save weekly report error")
			writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
			return
		}
		http.ServeFile(w, r, path)
		return
	}

	f, err := export.BuildWeeklyReport(week, spaces, reservations)
	if err != nil {
		s.logger.Error().Err(err).Msg("build weekly report error")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=week_%s.xlsx", weekStart.Format("2006-01-02")))
	if err := f.Write(w); err != nil {
		s.logger.Error().Err(err).Msg("write weekly report error")
	}
}

func parseDate(raw string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", strings.TrimSpace(raw), time.Local)
}

func parseDayTime(day time.Time, raw string) (time.Time, error) {
	clock, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(),
		clock.Hour(), clock.Minute(), 0, 0, day.Location()), nil
}

func onDay(t time.Time, day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(),
		t.Hour(), t.Minute(), t.Second(), 0, day.Location())
}
