package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prostor/internal/admission"
	"prostor/internal/database"
	"prostor/internal/domain"
	"prostor/internal/events"
	"prostor/internal/metrics"
	"prostor/internal/models"
	"prostor/internal/repository"
	"prostor/internal/timeslot"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReservationService is the admission coordinator: it runs the pure evaluator
// against the store while holding per-key admission guards, so that no two
// concurrent requests can interleave their read-decide-write sequences for
// the same space/day or client/week.
type ReservationService struct {
	store      domain.ReservationStore
	catalog    domain.SpaceCatalog
	guard      domain.AdmissionGuard
	eventBus   domain.EventPublisher
	clock      domain.Clock
	maxPerWeek int
	logger     *zerolog.Logger
}

func NewReservationService(
	store domain.ReservationStore,
	catalog domain.SpaceCatalog,
	guard domain.AdmissionGuard,
	eventBus domain.EventPublisher,
	clock domain.Clock,
	maxPerWeek int,
	logger *zerolog.Logger,
) *ReservationService {
	if maxPerWeek <= 0 {
		maxPerWeek = models.DefaultMaxPerWeek
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &ReservationService{
		store:      store,
		catalog:    catalog,
		guard:      guard,
		eventBus:   eventBus,
		clock:      clock,
		maxPerWeek: maxPerWeek,
		logger:     logger,
	}
}

func spaceDayKey(spaceID string, day time.Time) string {
	return fmt.Sprintf("space:%s:%s", spaceID, day.Format("2006-01-02"))
}

func clientWeekKey(clientEmail string, weekStart time.Time) string {
	return fmt.Sprintf("client:%s:%s", clientEmail, weekStart.Format("2006-01-02"))
}

// CreateReservation admits a candidate or rejects it with a typed error.
// Admitted reservations are persisted as CONFIRMED; there is no manual
// approval step.
func (s *ReservationService) CreateReservation(ctx context.Context, candidate *models.Reservation) (*models.Reservation, error) {
	space, err := s.catalog.GetSpace(ctx, candidate.SpaceID)
	if err != nil {
		metrics.IncAdmission("bad_request")
		return nil, err
	}

	if !candidate.Interval().Valid() {
		metrics.IncAdmission("bad_request")
		return nil, admission.ErrInvalidInterval
	}

	day := timeslot.DayOf(candidate.Date)
	weekStart, weekEnd := timeslot.WeekBounds(day)

	// Guard order is fixed (space/day before client/week) so composed
	// acquisitions cannot deadlock.
	releaseSpace, err := s.acquire(ctx, spaceDayKey(candidate.SpaceID, day))
	if err != nil {
		return nil, err
	}
	defer releaseSpace()

	releaseClient, err := s.acquire(ctx, clientWeekKey(candidate.ClientEmail, weekStart))
	if err != nil {
		return nil, err
	}
	defer releaseClient()

	overlapSet, err := s.store.FindActiveForDay(ctx, candidate.SpaceID, day, "")
	if err != nil {
		return nil, err
	}

	weekCount, err := s.store.CountActiveInWeek(ctx, candidate.ClientEmail, weekStart, weekEnd, "")
	if err != nil {
		return nil, err
	}

	if err := admission.Evaluate(candidate, overlapSet, weekCount, s.maxPerWeek); err != nil {
		return nil, s.rejected(ctx, candidate, weekStart, weekEnd, err)
	}

	now := s.clock.Now()
	created := *candidate
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	created.PlaceID = space.PlaceID
	created.Date = day
	created.Status = models.StatusConfirmed
	created.CreatedAt = now
	created.UpdatedAt = now

	if err := s.store.InsertReservation(ctx, &created); err != nil {
		return nil, err
	}

	metrics.IncAdmission("admitted")
	s.logger.Info().
		Str("reservation_id", created.ID).
		Str("space_id", created.SpaceID).
		Str("client", created.ClientEmail).
		Msg("reservation admitted")
	s.publishEvent(events.EventReservationCreated, &created)

	return &created, nil
}

// rejected records the decision and enriches quota rejections with the
// client's reservations for that week.
func (s *ReservationService) rejected(ctx context.Context, candidate *models.Reservation, weekStart, weekEnd time.Time, err error) error {
	var quotaErr *admission.QuotaExceededError
	var conflictErr *admission.ConflictError

	switch {
	case errors.As(err, &quotaErr):
		metrics.IncAdmission("quota_exceeded")
		if existing, listErr := s.store.ListActiveInWeek(ctx, candidate.ClientEmail, weekStart, weekEnd); listErr == nil {
			quotaErr.Existing = existing
		}
	case errors.As(err, &conflictErr):
		metrics.IncAdmission("conflict")
	default:
		metrics.IncAdmission("bad_request")
	}

	s.logger.Info().
		Err(err).
		Str("space_id", candidate.SpaceID).
		Str("client", candidate.ClientEmail).
		Msg("reservation rejected")
	return err
}

// UpdateReservation applies a patch. Moving a reservation in time re-runs
// conflict arbitration against the other active reservations for that
// space/day, under the same guard as create. The weekly quota is deliberately
// not re-checked here: it governs new bookings, not edits of existing ones.
func (s *ReservationService) UpdateReservation(ctx context.Context, id string, patch *models.ReservationPatch) (*models.Reservation, error) {
	existing, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	if !patch.ChangesTimes() {
		updated, err := s.store.UpdateReservationTimes(ctx, id, patch)
		if err != nil {
			return nil, err
		}
		s.publishEvent(events.EventReservationUpdated, updated)
		return updated, nil
	}

	candidate := patch.Apply(existing)
	if !candidate.Interval().Valid() {
		return nil, admission.ErrInvalidInterval
	}

	day := timeslot.DayOf(candidate.Date)

	release, err := s.acquire(ctx, spaceDayKey(existing.SpaceID, day))
	if err != nil {
		return nil, err
	}
	defer release()

	overlapSet, err := s.store.FindActiveForDay(ctx, existing.SpaceID, day, id)
	if err != nil {
		return nil, err
	}

	if err := admission.EvaluateConflict(&candidate, overlapSet); err != nil {
		var conflictErr *admission.ConflictError
		if errors.As(err, &conflictErr) {
			metrics.IncAdmission("conflict")
		}
		return nil, err
	}

	updated, err := s.store.UpdateReservationTimes(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventReservationUpdated, updated)
	return updated, nil
}

// CancelReservation marks a reservation CANCELLED. Cancelling an already
// cancelled reservation returns the same terminal state without error;
// COMPLETED cannot be left.
func (s *ReservationService) CancelReservation(ctx context.Context, id string) (*models.Reservation, error) {
	existing, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	switch existing.Status {
	case models.StatusCancelled:
		return existing, nil
	case models.StatusCompleted:
		return nil, database.ErrStatusFinal
	}

	cancelled, err := s.store.SetReservationStatus(ctx, id, models.StatusCancelled)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("reservation_id", id).Msg("reservation cancelled")
	s.publishEvent(events.EventReservationCancelled, cancelled)
	return cancelled, nil
}

func (s *ReservationService) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

func (s *ReservationService) GetReservationsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error) {
	return s.store.GetReservationsByDateRange(ctx, start, end)
}

// DeleteReservation is the administrative hard delete; it bypasses admission
// on purpose and is not reachable from the regular booking flow.
func (s *ReservationService) DeleteReservation(ctx context.Context, id string) error {
	existing, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteReservation(ctx, id); err != nil {
		return err
	}

	s.logger.Warn().Str("reservation_id", id).Msg("reservation hard-deleted")
	s.publishEvent(events.EventReservationDeleted, existing)
	return nil
}

func (s *ReservationService) acquire(ctx context.Context, key string) (func(), error) {
	release, err := s.guard.Acquire(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrGuardBusy) {
			metrics.IncGuardTimeout()
		}
		return nil, err
	}
	return release, nil
}

func (s *ReservationService) publishEvent(eventType string, r *models.Reservation) {
	if s.eventBus == nil {
		return
	}

	payload := events.ReservationEventPayload{
		ReservationID: r.ID,
		SpaceID:       r.SpaceID,
		PlaceID:       r.PlaceID,
		ClientEmail:   r.ClientEmail,
		Date:          r.Date,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		Status:        r.Status,
		Notes:         r.Notes,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("reservation_id", r.ID).Msg("publish event error")
	}
}
