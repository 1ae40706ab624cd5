package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const maxStats = 500

// Stats is the command log kept in <data_dir>/stats.txt, oldest line first,
// capped at 500 lines.
type Stats struct {
	mu    sync.Mutex
	path  string
	lines []string
}

// OpenStats reads the existing log, if any
func OpenStats(dataDir string) (*Stats, error) {
	s := &Stats{path: filepath.Join(dataDir, "stats.txt")}
	lines, err := readLines(s.path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	s.lines = trim(lines)
	return s, nil
}

// Append adds one line and rewrites the file
func (s *Stats) Append(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = trim(append(s.lines, line))
	return writeLines(s.path, s.lines)
}

// Last returns up to n of the newest lines, oldest first
func (s *Stats) Last(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.lines) || n <= 0 {
		n = len(s.lines)
	}
	out := make([]string, n)
	copy(out, s.lines[len(s.lines)-n:])
	return out
}

func trim(lines []string) []string {
	if len(lines) > maxStats {
		lines = lines[len(lines)-maxStats:]
	}
	return lines
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func writeLines(path string, lines []string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return w.Flush()
}
