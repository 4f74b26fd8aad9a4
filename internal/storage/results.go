package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"echoping/internal/models"
)

// DefaultHistorySize caps the number of kept results when none is given.
const DefaultHistorySize = 500

// ResultStorage keeps the most recent probe results and persists them.
type ResultStorage struct {
	mu         sync.RWMutex
	path       string
	maxHistory int
	history    []models.Result
}

// NewResultStorage loads previous results from path if present.
func NewResultStorage(path string, maxHistory int) (*ResultStorage, error) {
	if maxHistory <= 0 {
		maxHistory = DefaultHistorySize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}
	s := &ResultStorage{path: path, maxHistory: maxHistory}
	if _, err := readJSON(path, &s.history); err != nil {
		return nil, err
	}
	s.trimLocked()
	return s, nil
}

// Append records r and persists the history.
func (s *ResultStorage) Append(r models.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, r)
	s.trimLocked()
	return writeJSON(s.path, s.history)
}

// Latest returns the most recent result.
func (s *ResultStorage) Latest() (models.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.history) == 0 {
		return models.Result{}, false
	}
	return s.history[len(s.history)-1], true
}

// HistoryN returns up to n of the most recent results, oldest first.
// n <= 0 returns everything.
func (s *ResultStorage) HistoryN(n int) []models.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if n > 0 && len(s.history) > n {
		start = len(s.history) - n
	}
	out := make([]models.Result, len(s.history)-start)
	copy(out, s.history[start:])
	return out
}

func (s *ResultStorage) trimLocked() {
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
}
