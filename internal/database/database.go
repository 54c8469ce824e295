package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"prostor/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB is the sqlite-backed reservation store. The space/place catalog is
// seeded from config at startup and served from an in-memory cache; only
// reservations live in sqlite.
type DB struct {
	*sql.DB
	logger *zerolog.Logger

	mu     sync.RWMutex
	spaces map[string]*models.Space
	places map[string]*models.Place
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{
		DB:     db,
		logger: logger,
		spaces: make(map[string]*models.Space),
		places: make(map[string]*models.Place),
	}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reservations (
            id TEXT PRIMARY KEY,
            space_id TEXT NOT NULL,
            place_id TEXT NOT NULL,
            client_email TEXT NOT NULL,
            date DATETIME NOT NULL,
            start_time DATETIME NOT NULL,
            end_time DATETIME NOT NULL,
            status TEXT NOT NULL DEFAULT 'PENDING',
            notes TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_space_date ON reservations(space_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_client_date ON reservations(client_email, date)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// SetCatalog replaces the cached space/place catalog.
func (db *DB) SetCatalog(places []*models.Place, spaces []*models.Space) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.places = make(map[string]*models.Place, len(places))
	for _, p := range places {
		db.places[p.ID] = p
	}
	db.spaces = make(map[string]*models.Space, len(spaces))
	for _, s := range spaces {
		db.spaces[s.ID] = s
	}
}

func (db *DB) SpaceExists(ctx context.Context, id string) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	s, ok := db.spaces[id]
	return ok && s.IsActive, nil
}

func (db *DB) GetSpace(ctx context.Context, id string) (*models.Space, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	s, ok := db.spaces[id]
	if !ok || !s.IsActive {
		return nil, ErrSpaceNotFound
	}
	return s, nil
}

func (db *DB) GetActiveSpaces(ctx context.Context) ([]*models.Space, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]*models.Space, 0, len(db.spaces))
	for _, s := range db.spaces {
		if s.IsActive {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (db *DB) GetPlace(ctx context.Context, id string) (*models.Place, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	p, ok := db.places[id]
	if !ok {
		return nil, ErrPlaceNotFound
	}
	return p, nil
}
