// Package admission holds the pure decision logic for reservation requests:
// given a candidate and the relevant existing reservations, it decides
// whether the candidate may be admitted. It performs no I/O.
package admission

import (
	"errors"
	"fmt"

	"prostor/internal/models"
)

// ErrInvalidInterval rejects a candidate whose end does not follow its start.
var ErrInvalidInterval = errors.New("reservation end time must be after start time")

// ConflictError rejects a candidate overlapping an existing active reservation.
type ConflictError struct {
	ReservationID string
	SpaceID       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("space %s is already reserved for the requested slot by reservation %s", e.SpaceID, e.ReservationID)
}

// QuotaExceededError rejects a candidate that would push the client past the
// weekly cap. Existing is filled in by the caller for error detail.
type QuotaExceededError struct {
	ClientEmail string
	Current     int
	Max         int
	Existing    []*models.Reservation
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("client %s has %d of %d active reservations this week", e.ClientEmail, e.Current, e.Max)
}

// EvaluateConflict runs only the overlap test: the candidate conflicts if its
// interval overlaps any active reservation in the set, itself excluded.
func EvaluateConflict(candidate *models.Reservation, existing []*models.Reservation) error {
	slot := candidate.Interval()
	if !slot.Valid() {
		return ErrInvalidInterval
	}

	for _, r := range existing {
		if r.ID == candidate.ID || !r.IsActive() {
			continue
		}
		if slot.Overlaps(r.Interval()) {
			return &ConflictError{ReservationID: r.ID, SpaceID: r.SpaceID}
		}
	}
	return nil
}

// Evaluate decides whether the candidate may be admitted. existing is the set
// of active reservations for the candidate's space and date; weekCount is the
// client's active reservation count in the candidate's Monday-Sunday week,
// excluding the candidate itself. A conflict wins over a quota rejection.
func Evaluate(candidate *models.Reservation, existing []*models.Reservation, weekCount, maxPerWeek int) error {
	if err := EvaluateConflict(candidate, existing); err != nil {
		return err
	}

	if weekCount+1 > maxPerWeek {
		return &QuotaExceededError{
			ClientEmail: candidate.ClientEmail,
			Current:     weekCount,
			Max:         maxPerWeek,
		}
	}
	return nil
}
