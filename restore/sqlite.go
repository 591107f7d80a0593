package restore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/victorjacobs/go-ilightsln/light"
)

const (
	dirPermissions = 0750
	busyTimeoutMs  = 5000
	pingTimeout    = 5 * time.Second
)

const schema = `CREATE TABLE IF NOT EXISTS light_state (
	id         TEXT PRIMARY KEY,
	is_on      INTEGER NOT NULL,
	available  INTEGER NOT NULL,
	brightness INTEGER,
	native_brightness INTEGER,
	updated_at TEXT NOT NULL
)`

// Databases created before native_brightness existed get the column added.
const hasNativeBrightness = `SELECT COUNT(*) FROM pragma_table_info('light_state') WHERE name = 'native_brightness'`

// SQLiteStore keeps one row per light with its last known state.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", path, busyTimeoutMs))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating light_state table: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var columns int
	if err := db.QueryRowContext(ctx, hasNativeBrightness).Scan(&columns); err != nil {
		return fmt.Errorf("inspecting light_state table: %w", err)
	}

	if columns > 0 {
		return nil
	}

	if _, err := db.ExecContext(ctx, "ALTER TABLE light_state ADD COLUMN native_brightness INTEGER"); err != nil {
		return fmt.Errorf("adding native_brightness column: %w", err)
	}

	return nil
}

func (s *SQLiteStore) LastState(ctx context.Context, uniqueID string) (light.RestoredState, bool, error) {
	var state light.RestoredState
	var brightness, native sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		"SELECT is_on, available, brightness, native_brightness FROM light_state WHERE id = ?",
		uniqueID,
	).Scan(&state.On, &state.Available, &brightness, &native)
	if errors.Is(err, sql.ErrNoRows) {
		return light.RestoredState{}, false, nil
	}
	if err != nil {
		return light.RestoredState{}, false, fmt.Errorf("querying light state: %w", err)
	}

	if brightness.Valid {
		b := int(brightness.Int64)
		state.Brightness = &b
	}

	if native.Valid {
		n := int(native.Int64)
		state.NativeBrightness = &n
	}

	return state, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, uniqueID string, state light.RestoredState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO light_state (id, is_on, available, brightness, native_brightness, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   is_on = excluded.is_on,
		   available = excluded.available,
		   brightness = excluded.brightness,
		   native_brightness = excluded.native_brightness,
		   updated_at = excluded.updated_at`,
		uniqueID,
		state.On,
		state.Available,
		nullInt(state.Brightness),
		nullInt(state.NativeBrightness),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving light state: %w", err)
	}

	return nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

var _ Store = &SQLiteStore{}
