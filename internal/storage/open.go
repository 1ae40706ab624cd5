// Package storage holds the bot's on-disk state: the pending timer snapshot and
// the command stats log.
package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dalnet/opbot/internal/timer"
)

// Config selects the timer snapshot backend.
//
// Driver values:
//   - "file": YAML snapshot (default path <data_dir>/timers.yaml)
//   - "sqlite": SQLite database (default path <data_dir>/timers.db)
type Config struct {
	Driver      string        `yaml:"driver"`
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"` // sqlite only
}

// Backend is a timer persister that may hold resources
type Backend interface {
	timer.Persister
	Close() error
}

type fileBackend struct {
	*TimerFile
}

func (fileBackend) Close() error { return nil }

// Open initializes the configured backend
func Open(cfg Config, dataDir string) (Backend, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	path := strings.TrimSpace(cfg.Path)

	switch driver {
	case "", "file", "yaml":
		if path == "" {
			path = filepath.Join(dataDir, "timers.yaml")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		return fileBackend{NewTimerFile(path)}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			path = filepath.Join(dataDir, "timers.db")
		}
		db, err := OpenTimerDB(path, cfg.BusyTimeout)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
