// Package snapshot persists serialized user memory states to SQLite so a
// restart can pick up where the process left off. The memory subsystem
// itself stays volatile; this store is an opt-in operational layer written
// on shutdown and read once on startup.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/lunalab/luna/ai/memory"
)

// Store persists memory states, one row per user.
type Store struct {
	db *sql.DB
}

// NewStore opens (and migrates) the snapshot database at dsn.
//
// Notes:
// - When using the `modernc.org/sqlite` driver, each pragma must be prefixed with `_pragma=`.
// - WAL journal mode prevents locking issues; a single connection is optimal with WAL.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("sqlite", dsn+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS memory_snapshot (
		user_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		updated_ts BIGINT NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, "failed to migrate snapshot store")
	}
	return nil
}

// Save upserts one user's serialized state.
func (s *Store) Save(ctx context.Context, state memory.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal state for user %s", state.UserID)
	}

	const stmt = `
	INSERT INTO memory_snapshot (user_id, state, updated_ts)
	VALUES (?, ?, ?)
	ON CONFLICT (user_id) DO UPDATE SET state = excluded.state, updated_ts = excluded.updated_ts`
	if _, err := s.db.ExecContext(ctx, stmt, state.UserID, string(payload), time.Now().Unix()); err != nil {
		return errors.Wrapf(err, "failed to save snapshot for user %s", state.UserID)
	}
	return nil
}

// SaveAll persists every state, continuing past per-user failures.
func (s *Store) SaveAll(ctx context.Context, states []memory.State) error {
	var firstErr error
	saved := 0
	for _, state := range states {
		if err := s.Save(ctx, state); err != nil {
			slog.Error("snapshot save failed", "user_id", state.UserID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		saved++
	}
	slog.Info("memory snapshots written", "saved", saved, "total", len(states))
	return firstErr
}

// LoadAll reads every stored state. Corrupt rows are skipped with a warning
// so one bad record cannot poison the rest of the restore.
func (s *Store) LoadAll(ctx context.Context) ([]memory.State, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id, state FROM memory_snapshot")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query snapshots")
	}
	defer rows.Close()

	var states []memory.State
	for rows.Next() {
		var userID, payload string
		if err := rows.Scan(&userID, &payload); err != nil {
			return nil, errors.Wrap(err, "failed to scan snapshot row")
		}
		var state memory.State
		if err := json.Unmarshal([]byte(payload), &state); err != nil {
			slog.Warn("skipping corrupt snapshot", "user_id", userID, "error", err)
			continue
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate snapshots")
	}
	return states, nil
}

// Delete removes one user's snapshot.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM memory_snapshot WHERE user_id = ?", userID); err != nil {
		return errors.Wrapf(err, "failed to delete snapshot for user %s", userID)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
