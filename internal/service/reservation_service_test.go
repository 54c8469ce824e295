package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"prostor/internal/admission"
	"prostor/internal/database"
	"prostor/internal/models"
	"prostor/internal/repository"
	"prostor/internal/timeslot"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory ReservationStore mirroring the sqlite queries.
type fakeStore struct {
	mu           sync.Mutex
	reservations map[string]*models.Reservation
}

func newFakeStore() *fakeStore {
	return &fakeStore{reservations: make(map[string]*models.Reservation)}
}

func (s *fakeStore) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	out := *r
	return &out, nil
}

func (s *fakeStore) InsertReservation(ctx context.Context, r *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *r
	s.reservations[r.ID] = &stored
	return nil
}

func (s *fakeStore) UpdateReservationTimes(ctx context.Context, id string, patch *models.ReservationPatch) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	updated := patch.Apply(r)
	updated.UpdatedAt = time.Now()
	s.reservations[id] = &updated
	out := updated
	return &out, nil
}

func (s *fakeStore) SetReservationStatus(ctx context.Context, id string, status string) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = time.Now()
	out := *r
	return &out, nil
}

func (s *fakeStore) DeleteReservation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reservations[id]; !ok {
		return database.ErrNotFound
	}
	delete(s.reservations, id)
	return nil
}

func (s *fakeStore) ReservationExists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.reservations[id]
	return ok, nil
}

func (s *fakeStore) FindActiveForDay(ctx context.Context, spaceID string, date time.Time, excludeID string) ([]*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Reservation
	for _, r := range s.reservations {
		if r.SpaceID != spaceID || r.ID == excludeID || !r.IsActive() {
			continue
		}
		if !timeslot.DayOf(r.Date).Equal(timeslot.DayOf(date)) {
			continue
		}
		copied := *r
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *fakeStore) CountActiveInWeek(ctx context.Context, clientEmail string, weekStart, weekEnd time.Time, excludeID string) (int, error) {
	list, err := s.ListActiveInWeek(ctx, clientEmail, weekStart, weekEnd)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, r := range list {
		if r.ID != excludeID {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) ListActiveInWeek(ctx context.Context, clientEmail string, weekStart, weekEnd time.Time) ([]*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Reservation
	for _, r := range s.reservations {
		if r.ClientEmail != clientEmail || !r.IsActive() {
			continue
		}
		if r.Date.Before(weekStart) || r.Date.After(weekEnd) {
			continue
		}
		copied := *r
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *fakeStore) GetReservationsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Reservation
	for _, r := range s.reservations {
		if r.Date.Before(start) || r.Date.After(end) {
			continue
		}
		copied := *r
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *fakeStore) CompleteEndedReservations(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var completed int64
	for _, r := range s.reservations {
		if r.IsActive() && r.EndTime.Before(now) {
			r.Status = models.StatusCompleted
			completed++
		}
	}
	return completed, nil
}

type fakeCatalog struct {
	spaces map[string]*models.Space
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{spaces: map[string]*models.Space{
		"sp-1": {ID: "sp-1", PlaceID: "pl-1", Name: "Meeting Room A", Capacity: 8, IsActive: true},
		"sp-2": {ID: "sp-2", PlaceID: "pl-1", Name: "Meeting Room B", Capacity: 4, IsActive: true},
	}}
}

func (c *fakeCatalog) SpaceExists(ctx context.Context, id string) (bool, error) {
	_, ok := c.spaces[id]
	return ok, nil
}

func (c *fakeCatalog) GetSpace(ctx context.Context, id string) (*models.Space, error) {
	s, ok := c.spaces[id]
	if !ok {
		return nil, database.ErrSpaceNotFound
	}
	return s, nil
}

func (c *fakeCatalog) GetActiveSpaces(ctx context.Context) ([]*models.Space, error) {
	out := make([]*models.Space, 0, len(c.spaces))
	for _, s := range c.spaces {
		out = append(out, s)
	}
	return out, nil
}

func (c *fakeCatalog) GetPlace(ctx context.Context, id string) (*models.Place, error) {
	return &models.Place{ID: id, Name: "Downtown"}, nil
}

type busyGuard struct{}

func (busyGuard) Acquire(ctx context.Context, key string) (func(), error) {
	return nil, repository.ErrGuardBusy
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testDay = time.Date(2026, 1, 21, 0, 0, 0, 0, time.Local) // Wednesday

func newTestService(store *fakeStore) *ReservationService {
	logger := zerolog.Nop()
	return NewReservationService(
		store,
		newFakeCatalog(),
		repository.NewMemoryGuard(time.Second),
		nil,
		fixedClock{now: testDay.Add(8 * time.Hour)},
		3,
		&logger,
	)
}

func candidate(spaceID, client string, day time.Time, startHour, endHour int) *models.Reservation {
	return &models.Reservation{
		SpaceID:     spaceID,
		ClientEmail: client,
		Date:        day,
		StartTime:   day.Add(time.Duration(startHour) * time.Hour),
		EndTime:     day.Add(time.Duration(endHour) * time.Hour),
	}
}

func TestCreateReservation(t *testing.T) {
	ctx := context.Background()

	t.Run("AdmittedAndConfirmed", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store)

		created, err := svc.CreateReservation(ctx, candidate("sp-1", "alice@example.com", testDay, 9, 11))
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, models.StatusConfirmed, created.Status)
		assert.Equal(t, "pl-1", created.PlaceID)
		assert.Equal(t, testDay, created.Date)
		assert.False(t, created.CreatedAt.IsZero())

		stored, err := store.GetReservation(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, stored.Status)
	})

	t.Run("UnknownSpace", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		_, err := svc.CreateReservation(ctx, candidate("missing", "alice@example.com", testDay, 9, 11))
		assert.ErrorIs(t, err, database.ErrSpaceNotFound)
	})

	t.Run("InvalidInterval", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		_, err := svc.CreateReservation(ctx, candidate("sp-1", "alice@example.com", testDay, 11, 9))
		assert.ErrorIs(t, err, admission.ErrInvalidInterval)
	})

	t.Run("Conflict", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store)

		first, err := svc.CreateReservation(ctx, candidate("sp-1", "alice@example.com", testDay, 9, 12))
		require.NoError(t, err)

		_, err = svc.CreateReservation(ctx, candidate("sp-1", "bob@example.com", testDay, 11, 13))
		var conflictErr *admission.ConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, first.ID, conflictErr.ReservationID)
	})

	t.Run("BackToBackAdmitted", func(t *testing.T) {
		svc := newTestService(newFakeStore())

		_, err := svc.CreateReservation(ctx, candidate("sp-1", "alice@example.com", testDay, 9, 12))
		require.NoError(t, err)

		_, err = svc.CreateReservation(ctx, candidate("sp-1", "bob@example.com", testDay, 12, 15))
		assert.NoError(t, err)
	})

	t.Run("DifferentSpacesDoNotConflict", func(t *testing.T) {
		svc := newTestService(newFakeStore())

		_, err := svc.CreateReservation(ctx, candidate("sp-1", "alice@example.com", testDay, 9, 12))
		require.NoError(t, err)

		_, err = svc.CreateReservation(ctx, candidate("sp-2", "bob@example.com", testDay, 9, 12))
		assert.NoError(t, err)
	})

	t.Run("QuotaExceeded", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		client := "alice@example.com"

		// Three bookings within one Monday-Sunday week fill the quota.
		for i := 0; i < 3; i++ {
			_, err := svc.CreateReservation(ctx, candidate("sp-1", client, testDay.AddDate(0, 0, i), 9, 11))
			require.NoError(t, err)
		}

		_, err := svc.CreateReservation(ctx, candidate("sp-2", client, testDay.AddDate(0, 0, 3), 9, 11))
		var quotaErr *admission.QuotaExceededError
		require.ErrorAs(t, err, &quotaErr)
		assert.Equal(t, 3, quotaErr.Current)
		assert.Equal(t, 3, quotaErr.Max)
		assert.Len(t, quotaErr.Existing, 3)
	})

	t.Run("NextWeekResetsQuota", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		client := "alice@example.com"

		for i := 0; i < 3; i++ {
			_, err := svc.CreateReservation(ctx, candidate("sp-1", client, testDay.AddDate(0, 0, i), 9, 11))
			require.NoError(t, err)
		}

		// The following Monday starts a fresh week.
		nextMonday := time.Date(2026, 1, 26, 0, 0, 0, 0, time.Local)
		_, err := svc.CreateReservation(ctx, candidate("sp-1", client, nextMonday, 9, 11))
		assert.NoError(t, err)
	})

	t.Run("CancelledFreesQuota", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		client := "alice@example.com"

		var ids []string
		for i := 0; i < 3; i++ {
			created, err := svc.CreateReservation(ctx, candidate("sp-1", client, testDay.AddDate(0, 0, i), 9, 11))
			require.NoError(t, err)
			ids = append(ids, created.ID)
		}

		_, err := svc.CancelReservation(ctx, ids[0])
		require.NoError(t, err)

		_, err = svc.CreateReservation(ctx, candidate("sp-2", client, testDay.AddDate(0, 0, 3), 9, 11))
		assert.NoError(t, err)
	})

	t.Run("CancelledFreesSlot", func(t *testing.T) {
		svc := newTestService(newFakeStore())

		created, err := svc.CreateReservation(ctx, candidate("sp-1", "alice@example.com", testDay, 9, 12))
		require.NoError(t, err)

		_, err = svc.CancelReservation(ctx, created.ID)
		require.NoError(t, err)

		_, err = svc.CreateReservation(ctx, candidate("sp-1", "bob@example.com", testDay, 9, 12))
		assert.NoError(t, err)
	})

	t.Run("GuardBusy", func(t *testing.T) {
		logger := zerolog.Nop()
		svc := NewReservationService(
			newFakeStore(), newFakeCatalog(), busyGuard{}, nil,
			fixedClock{now: testDay}, 3, &logger)

		_, err := svc.CreateReservation(ctx, candidate("sp-1", "alice@example.com", testDay, 9, 11))
		assert.ErrorIs(t, err, repository.ErrGuardBusy)
	})

	t.Run("ConcurrentCreatesAdmitOne", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store)

		const workers = 8
		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				client := string(rune('a'+i)) + "@example.com"
				_, errs[i] = svc.CreateReservation(ctx, candidate("sp-1", client, testDay, 9, 11))
			}(i)
		}
		wg.Wait()

		admitted := 0
		for _, err := range errs {
			if err == nil {
				admitted++
			} else {
				var conflictErr *admission.ConflictError
				assert.ErrorAs(t, err, &conflictErr)
			}
		}
		assert.Equal(t, 1, admitted)
	})
}

func TestCreateReservationRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore())
	day := time.Date(2026, 2, 2, 0, 0, 0, 0, time.Local)

	r1, err := svc.CreateReservation(ctx, candidate("sp-1", "alice@example.com", day, 9, 11))
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, r1.Status)

	_, err = svc.CreateReservation(ctx, candidate("sp-1", "bob@example.com", day, 10, 12))
	var conflictErr *admission.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, r1.ID, conflictErr.ReservationID)

	r3, err := svc.CreateReservation(ctx, candidate("sp-1", "carol@example.com", day, 11, 12))
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, r3.Status)
}

func TestUpdateReservation(t *testing.T) {
	ctx := context.Background()

	t.Run("NotesOnly", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		created, err := svc.CreateReservation(ctx, candidate("sp-1", "alice@example.com", testDay, 9, 11))
		require.NoError(t, err)

		notes := "whiteboard please"
		updated, err := svc.UpdateReservation(ctx, created.ID, &models.ReservationPatch{Notes: &notes})
		require.NoError(t, err)
		assert.Equal(t, "whiteboard please", updated.Notes)
		assert.True(t, updated.StartTime.Equal(created.StartTime))
	})

	t.Run("MoveWithinFreeDay", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		created, err := svc.CreateReservation(ctx, candidate("sp-1", "alice@example.com", testDay, 9, 11))
		require.NoError(t, err)

		newStart := testDay.Add(14 * time.Hour)
		newEnd := testDay.Add(16 * time.Hour)
		updated, err := svc.UpdateReservation(ctx, created.ID, &models.ReservationPatch{
			StartTime: &newStart, EndTime: &newEnd,
		})
		require.NoError(t, err)
		assert.True(t, updated.StartTime.Equal(newStart))
	})

	t.Run("MoveOntoOtherReservationConflicts", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		first, err := svc.CreateReservation(ctx, candidate("sp-1", "alice@example.com", testDay, 9, 11))
		require.NoError(t, err)
		second, err := svc.CreateReservation(ctx, candidate("sp-1", "bob@example.com", testDay, 14, 16))
		require.NoError(t, err)

		newStart := testDay.Add(10 * time.Hour)
		newEnd := testDay.Add(15 * time.Hour)
		_, err = svc.UpdateReservation(ctx, second.ID, &models.ReservationPatch{
			StartTime: &newStart, EndTime: &newEnd,
		})
		var conflictErr *admission.ConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, first.ID, conflictErr.ReservationID)
	})

	t.Run("OverlapWithSelfAllowed", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		created, err := svc.CreateReservation(ctx, candidate("sp-1", "alice@example.com", testDay, 9, 11))
		require.NoError(t, err)

		// Extend in place: the moved slot overlaps only the old slot.
		newEnd := testDay.Add(12 * time.Hour)
		_, err = svc.UpdateReservation(ctx, created.ID, &models.ReservationPatch{EndTime: &newEnd})
		assert.NoError(t, err)
	})

	t.Run("QuotaNotRecheckedOnMove", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		client := "alice@example.com"

		var ids []string
		for i := 0; i < 3; i++ {
			created, err := svc.CreateReservation(ctx, candidate("sp-1", client, testDay.AddDate(0, 0, i), 9, 11))
			require.NoError(t, err)
			ids = append(ids, created.ID)
		}

		// Moving a full-quota client's booking within the week still works.
		newStart := testDay.Add(15 * time.Hour)
		newEnd := testDay.Add(17 * time.Hour)
		_, err := svc.UpdateReservation(ctx, ids[0], &models.ReservationPatch{
			StartTime: &newStart, EndTime: &newEnd,
		})
		assert.NoError(t, err)
	})

	t.Run("InvalidInterval", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		created, err := svc.CreateReservation(ctx, candidate("sp-1", "alice@example.com", testDay, 9, 11))
		require.NoError(t, err)

		badEnd := testDay.Add(8 * time.Hour)
		_, err = svc.UpdateReservation(ctx, created.ID, &models.ReservationPatch{EndTime: &badEnd})
		assert.ErrorIs(t, err, admission.ErrInvalidInterval)
	})

	t.Run("NotFound", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		notes := "x"
		_, err := svc.UpdateReservation(ctx, "missing", &models.ReservationPatch{Notes: &notes})
		assert.ErrorIs(t, err, database.ErrNotFound)
	})
}

func TestCancelReservation(t *testing.T) {
	ctx := context.Background()

	t.Run("Cancel", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		created, err := svc.CreateReservation(ctx, candidate("sp-1", "alice@example.com", testDay, 9, 11))
		require.NoError(t, err)

		cancelled, err := svc.CancelReservation(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, cancelled.Status)
	})

	t.Run("Idempotent", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		created, err := svc.CreateReservation(ctx, candidate("sp-1", "alice@example.com", testDay, 9, 11))
		require.NoError(t, err)

		_, err = svc.CancelReservation(ctx, created.ID)
		require.NoError(t, err)

		again, err := svc.CancelReservation(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, again.Status)
	})

	t.Run("CompletedIsFinal", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store)
		created, err := svc.CreateReservation(ctx, candidate("sp-1", "alice@example.com", testDay, 9, 11))
		require.NoError(t, err)

		_, err = store.SetReservationStatus(ctx, created.ID, models.StatusCompleted)
		require.NoError(t, err)

		_, err = svc.CancelReservation(ctx, created.ID)
		assert.ErrorIs(t, err, database.ErrStatusFinal)
	})

	t.Run("NotFound", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		_, err := svc.CancelReservation(ctx, "missing")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})
}

func TestDeleteReservation(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)

	created, err := svc.CreateReservation(ctx, candidate("sp-1", "alice@example.com", testDay, 9, 11))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteReservation(ctx, created.ID))

	_, err = svc.GetReservation(ctx, created.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)

	assert.ErrorIs(t, svc.DeleteReservation(ctx, created.ID), database.ErrNotFound)
}
