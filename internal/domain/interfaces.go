package domain

import (
	"context"
	"time"

	"prostor/internal/models"
)

// ReservationStore is the persistence boundary for reservations. The
// admission coordinator is its only writer path; nothing else may insert or
// mutate reservation rows (hard delete is the one administrative bypass).
type ReservationStore interface {
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	InsertReservation(ctx context.Context, r *models.Reservation) error
	UpdateReservationTimes(ctx context.Context, id string, patch *models.ReservationPatch) (*models.Reservation, error)
	SetReservationStatus(ctx context.Context, id string, status string) (*models.Reservation, error)
	DeleteReservation(ctx context.Context, id string) error
	ReservationExists(ctx context.Context, id string) (bool, error)
	FindActiveForDay(ctx context.Context, spaceID string, date time.Time, excludeID string) ([]*models.Reservation, error)
	CountActiveInWeek(ctx context.Context, clientEmail string, weekStart, weekEnd time.Time, excludeID string) (int, error)
	ListActiveInWeek(ctx context.Context, clientEmail string, weekStart, weekEnd time.Time) ([]*models.Reservation, error)
	GetReservationsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error)
	CompleteEndedReservations(ctx context.Context, now time.Time) (int64, error)
}

// SpaceCatalog is the read side of the resource catalog.
type SpaceCatalog interface {
	SpaceExists(ctx context.Context, id string) (bool, error)
	GetSpace(ctx context.Context, id string) (*models.Space, error)
	GetActiveSpaces(ctx context.Context) ([]*models.Space, error)
	GetPlace(ctx context.Context, id string) (*models.Place, error)
}

// AdmissionGuard serializes read-decide-write sequences per key. Acquire
// blocks until the key is held, the guard's timeout elapses, or ctx is done;
// the returned release must be called exactly once.
type AdmissionGuard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// EventPublisher fans domain events out to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Clock supplies "now"; injectable for deterministic week-boundary tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock Clock used outside tests.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ReservationService is the admission coordinator contract exposed to the
// request-handling layer.
type ReservationService interface {
	CreateReservation(ctx context.Context, candidate *models.Reservation) (*models.Reservation, error)
	UpdateReservation(ctx context.Context, id string, patch *models.ReservationPatch) (*models.Reservation, error)
	CancelReservation(ctx context.Context, id string) (*models.Reservation, error)
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	GetReservationsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error)
	DeleteReservation(ctx context.Context, id string) error
}
