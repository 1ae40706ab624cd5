package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dalnet/opbot/internal/timer"
)

// timerFile is the on-disk shape of timers.yaml
type timerFile struct {
	Timers []timer.Entry `yaml:"timers"`
}

// TimerFile persists the timer snapshot as YAML. Saves go to a temporary file
// that is renamed over the old one.
type TimerFile struct {
	path string
}

// NewTimerFile returns a persister for path
func NewTimerFile(path string) *TimerFile {
	return &TimerFile{path: path}
}

// Load reads the snapshot; a missing file is an empty snapshot
func (f *TimerFile) Load(ctx context.Context) ([]timer.Entry, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []timer.Entry{}, nil
		}
		return nil, err
	}

	var tf timerFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	if tf.Timers == nil {
		tf.Timers = []timer.Entry{}
	}
	return tf.Timers, nil
}

// Save replaces the snapshot with entries
func (f *TimerFile) Save(ctx context.Context, entries []timer.Entry) error {
	data, err := yaml.Marshal(timerFile{Timers: entries})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".timers-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
