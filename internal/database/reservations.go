package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"prostor/internal/models"
)

const reservationColumns = `id, space_id, place_id, client_email, date(date), start_time,
                 end_time, status, notes, created_at, updated_at`

func scanReservation(scan func(dest ...any) error) (*models.Reservation, error) {
	var r models.Reservation
	var dateStr string
	err := scan(
		&r.ID, &r.SpaceID, &r.PlaceID, &r.ClientEmail, &dateStr,
		&r.StartTime, &r.EndTime, &r.Status, &r.Notes,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Date, err = time.ParseInLocation("2006-01-02", dateStr, time.Local)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reservation date %s: %w", dateStr, err)
	}
	return &r, nil
}

func (db *DB) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	row := db.QueryRowContext(ctx, query, id)

	r, err := scanReservation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

func (db *DB) InsertReservation(ctx context.Context, r *models.Reservation) error {
	query := `INSERT INTO reservations (
				id, space_id, place_id, client_email, date, start_time,
				end_time, status, notes, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		r.ID,
		r.SpaceID,
		r.PlaceID,
		r.ClientEmail,
		r.Date.Format("2006-01-02"),
		r.StartTime,
		r.EndTime,
		r.Status,
		r.Notes,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	return nil
}

func (db *DB) UpdateReservationTimes(ctx context.Context, id string, patch *models.ReservationPatch) (*models.Reservation, error) {
	existing, err := db.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := patch.Apply(existing)
	updated.UpdatedAt = time.Now()

	query := `UPDATE reservations SET date = ?, start_time = ?, end_time = ?, notes = ?, updated_at = ? WHERE id = ?`
	_, err = db.ExecContext(ctx, query,
		updated.Date.Format("2006-01-02"),
		updated.StartTime,
		updated.EndTime,
		updated.Notes,
		updated.UpdatedAt,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update reservation: %w", err)
	}
	return db.GetReservation(ctx, id)
}

func (db *DB) SetReservationStatus(ctx context.Context, id string, status string) (*models.Reservation, error) {
	query := `UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to set reservation status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, ErrNotFound
	}
	return db.GetReservation(ctx, id)
}

func (db *DB) DeleteReservation(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete reservation: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) ReservationExists(ctx context.Context, id string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check reservation existence: %w", err)
	}
	return count > 0, nil
}

// FindActiveForDay returns the active reservations for a space on a calendar
// day; the overlap decision itself happens in the admission evaluator.
func (db *DB) FindActiveForDay(ctx context.Context, spaceID string, date time.Time, excludeID string) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
              FROM reservations
              WHERE space_id = ? AND date(date) = date(?) AND status IN (?, ?) AND id != ?
              ORDER BY start_time ASC`
	rows, err := db.QueryContext(ctx, query,
		spaceID, date.Format("2006-01-02"),
		models.StatusPending, models.StatusConfirmed, excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to find active reservations: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

func (db *DB) CountActiveInWeek(ctx context.Context, clientEmail string, weekStart, weekEnd time.Time, excludeID string) (int, error) {
	query := `SELECT COUNT(*) FROM reservations
              WHERE client_email = ? AND date(date) >= date(?) AND date(date) <= date(?)
              AND status IN (?, ?) AND id != ?`
	var count int
	err := db.QueryRowContext(ctx, query,
		clientEmail, weekStart.Format("2006-01-02"), weekEnd.Format("2006-01-02"),
		models.StatusPending, models.StatusConfirmed, excludeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count weekly reservations: %w", err)
	}
	return count, nil
}

func (db *DB) ListActiveInWeek(ctx context.Context, clientEmail string, weekStart, weekEnd time.Time) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
              FROM reservations
              WHERE client_email = ? AND date(date) >= date(?) AND date(date) <= date(?)
              AND status IN (?, ?)
              ORDER BY date ASC, start_time ASC`
	rows, err := db.QueryContext(ctx, query,
		clientEmail, weekStart.Format("2006-01-02"), weekEnd.Format("2006-01-02"),
		models.StatusPending, models.StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to list weekly reservations: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

func (db *DB) GetReservationsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
              FROM reservations
              WHERE date(date) >= date(?) AND date(date) <= date(?)
              ORDER BY date ASC, start_time ASC`
	rows, err := db.QueryContext(ctx, query, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to get reservations by date range: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

// CompleteEndedReservations marks active reservations whose end time has
// passed as COMPLETED and returns how many rows changed.
func (db *DB) CompleteEndedReservations(ctx context.Context, now time.Time) (int64, error) {
	now = now.Truncate(time.Second)
	query := `UPDATE reservations SET status = ?, updated_at = ?
              WHERE status IN (?, ?) AND datetime(end_time) < datetime(?)`
	result, err := db.ExecContext(ctx, query,
		models.StatusCompleted, now,
		models.StatusPending, models.StatusConfirmed, now)
	if err != nil {
		return 0, fmt.Errorf("failed to complete ended reservations: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count completed reservations: %w", err)
	}
	return rows, nil
}

func collectReservations(rows *sql.Rows) ([]*models.Reservation, error) {
	var out []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
