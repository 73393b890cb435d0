package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/regionbrief/regionbrief/internal/logger"
	"github.com/regionbrief/regionbrief/internal/models"
)

// FileStore persists dedup state as a single JSON document keyed by region:
// {"seen": {"DE": {"<fingerprint>": 1756400000000}}}. One run follows
// read-modify-write: Load at run start, mutate in memory, Persist at run
// end. The mutex serializes concurrent region runs sharing the store.
type FileStore struct {
	path string

	mu   sync.RWMutex
	seen map[string]map[string]int64

	now func() time.Time
}

type fileState struct {
	Seen map[string]map[string]int64 `json:"seen"`
}

func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		seen: make(map[string]map[string]int64),
		now:  time.Now,
	}
}

// Load merges the state file into memory. Merging rather than replacing
// means marks made since the last Persist survive a reload; on conflict the
// newer timestamp wins. A missing or unreadable file is not fatal: the
// in-memory state stands and a warning is logged.
func (s *FileStore) Load(ctx context.Context) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Get().Warn().Err(err).Str("path", s.path).
				Msg("State file unreadable, keeping in-memory dedup state")
		}
		return nil
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		logger.Get().Warn().Err(err).Str("path", s.path).
			Msg("State file corrupt, keeping in-memory dedup state")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for region, fingerprints := range state.Seen {
		if s.seen[region] == nil {
			s.seen[region] = make(map[string]int64, len(fingerprints))
		}
		for fingerprint, lastSeen := range fingerprints {
			if lastSeen > s.seen[region][fingerprint] {
				s.seen[region][fingerprint] = lastSeen
			}
		}
	}
	return nil
}

// Persist writes the state document. Write failure is returned so the
// invoker can surface the risk of re-delivery on the next run.
func (s *FileStore) Persist(ctx context.Context) error {
	s.mu.RLock()
	data, err := json.MarshalIndent(fileState{Seen: s.seen}, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal dedup state: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

func (s *FileStore) IsFresh(ctx context.Context, region string, item models.NewsItem, freshness time.Duration) (bool, error) {
	fingerprint := item.Fingerprint()
	if fingerprint == "" {
		return false, nil
	}

	cutoff := s.now().Add(-freshness).UnixMilli()
	if item.PublishedAtMs < cutoff {
		return false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, seen := s.seen[region][fingerprint]
	return !seen, nil
}

func (s *FileStore) MarkConsumed(ctx context.Context, region string, items []models.NewsItem) error {
	nowMs := s.now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		fingerprint := item.Fingerprint()
		if fingerprint == "" {
			continue
		}
		if s.seen[region] == nil {
			s.seen[region] = make(map[string]int64)
		}
		s.seen[region][fingerprint] = nowMs
	}
	return nil
}

func (s *FileStore) Prune(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := s.now().Add(-retention).UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for region, fingerprints := range s.seen {
		for fingerprint, lastSeen := range fingerprints {
			if lastSeen < cutoff {
				delete(fingerprints, fingerprint)
				removed++
			}
		}
		if len(fingerprints) == 0 {
			delete(s.seen, region)
		}
	}
	return removed, nil
}

func (s *FileStore) Stats(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int, len(s.seen))
	for region, fingerprints := range s.seen {
		stats[region] = len(fingerprints)
	}
	return stats, nil
}
