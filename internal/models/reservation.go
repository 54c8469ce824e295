package models

import (
	"time"

	"prostor/internal/timeslot"
)

// Reservation is a booking of a space for a time interval on one calendar day.
type Reservation struct {
	ID          string    `json:"id"`
	SpaceID     string    `json:"space_id"`
	PlaceID     string    `json:"place_id"`
	ClientEmail string    `json:"client_email"`
	Date        time.Time `json:"date"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Status      string    `json:"status"` // PENDING, CONFIRMED, CANCELLED, COMPLETED
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsActive reports whether the reservation occupies its slot: only PENDING
// and CONFIRMED reservations count toward conflicts and the weekly quota.
func (r *Reservation) IsActive() bool {
	return r.Status == StatusPending || r.Status == StatusConfirmed
}

// IsFinal reports whether the status is terminal.
func (r *Reservation) IsFinal() bool {
	return r.Status == StatusCancelled || r.Status == StatusCompleted
}

// Interval returns the reserved time slot.
func (r *Reservation) Interval() timeslot.Interval {
	return timeslot.Interval{Start: r.StartTime, End: r.EndTime}
}

// ReservationPatch carries the mutable reservation fields; nil means "leave as is".
type ReservationPatch struct {
	Date      *time.Time
	StartTime *time.Time
	EndTime   *time.Time
	Notes     *string
}

// ChangesTimes reports whether applying the patch moves the reservation in time.
func (p *ReservationPatch) ChangesTimes() bool {
	if p == nil {
		return false
	}
	return p.Date != nil || p.StartTime != nil || p.EndTime != nil
}

// Apply returns a copy of base with the patch laid over it.
func (p *ReservationPatch) Apply(base *Reservation) Reservation {
	out := *base
	if p == nil {
		return out
	}
	if p.Date != nil {
		out.Date = timeslot.DayOf(*p.Date)
	}
	if p.StartTime != nil {
		out.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		out.EndTime = *p.EndTime
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	return out
}
