package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/dalnet/opbot/internal/timer"
)

const timersSchema = `
CREATE TABLE IF NOT EXISTS timers (
	position INTEGER NOT NULL PRIMARY KEY,
	id       TEXT    NOT NULL,
	fire_at  INTEGER NOT NULL,
	action   TEXT    NOT NULL,
	target   TEXT    NOT NULL,
	channel  TEXT    NOT NULL
)`

// timerRow is one row of the timers table; fire_at is unix nanoseconds
type timerRow struct {
	Position int    `db:"position"`
	ID       string `db:"id"`
	FireAt   int64  `db:"fire_at"`
	Action   string `db:"action"`
	Target   string `db:"target"`
	Channel  string `db:"channel"`
}

// TimerDB persists the timer snapshot in a SQLite database
type TimerDB struct {
	db *sqlx.DB
}

// OpenTimerDB opens (and migrates) the database at path
func OpenTimerDB(path string, busyTimeout time.Duration) (*TimerDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if busyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")

	if _, err := db.Exec(timersSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", path, err)
	}
	return &TimerDB{db: db}, nil
}

// Load returns the stored entries in order
func (s *TimerDB) Load(ctx context.Context) ([]timer.Entry, error) {
	var rows []timerRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT position, id, fire_at, action, target, channel FROM timers ORDER BY position`); err != nil {
		return nil, err
	}

	entries := make([]timer.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, timer.Entry{
			ID:      r.ID,
			FireAt:  time.Unix(0, r.FireAt).UTC(),
			Action:  timer.Kind(r.Action),
			Target:  r.Target,
			Channel: r.Channel,
		})
	}
	return entries, nil
}

// Save rewrites the table with entries in one transaction
func (s *TimerDB) Save(ctx context.Context, entries []timer.Entry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM timers`); err != nil {
		return err
	}
	for i, e := range entries {
		row := timerRow{
			Position: i,
			ID:       e.ID,
			FireAt:   e.FireAt.UnixNano(),
			Action:   string(e.Action),
			Target:   e.Target,
			Channel:  e.Channel,
		}
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO timers(position, id, fire_at, action, target, channel)
			 VALUES(:position, :id, :fire_at, :action, :target, :channel)`, row); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Close releases the database
func (s *TimerDB) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
