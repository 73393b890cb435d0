package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/regionbrief/regionbrief/internal/models"
)

// Digest is the durable record of one region run's emissions. Unlike the
// dedup state it is append-only history, kept for the HTTP API and the
// optional object-store archive.
type Digest struct {
	ID       string                `json:"id"`
	Region   string                `json:"region"`
	RanAt    time.Time             `json:"ran_at"`
	Fallback bool                  `json:"fallback,omitempty"`
	Clusters []models.TopicCluster `json:"clusters"`
}

type Storage struct {
	basePath string
	mu       sync.RWMutex
}

func NewStorage(basePath string) (*Storage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

// SaveDigest writes a digest under a dated directory (YYYY/MM/DD) and fills
// in its ID.
func (s *Storage) SaveDigest(ctx context.Context, digest *Digest) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if digest.RanAt.IsZero() {
		digest.RanAt = time.Now()
	}
	digest.ID = fmt.Sprintf("%d_%s", digest.RanAt.Unix(), digest.Region)

	datePath := filepath.Join(s.basePath, digest.RanAt.Format("2006/01/02"))
	if err := os.MkdirAll(datePath, 0755); err != nil {
		return fmt.Errorf("failed to create date directory: %w", err)
	}

	data, err := json.MarshalIndent(digest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal digest: %w", err)
	}

	filePath := filepath.Join(datePath, digest.ID+".json")
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write digest file: %w", err)
	}
	return nil
}

// GetDigestByID retrieves a digest by its ID.
func (s *Storage) GetDigestByID(ctx context.Context, id string) (*Digest, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *Digest
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != id+".json" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", path, err)
		}

		var digest Digest
		if err := json.Unmarshal(data, &digest); err != nil {
			return fmt.Errorf("failed to unmarshal digest: %w", err)
		}
		found = &digest
		return filepath.SkipAll
	})
	if err != nil {
		return nil, fmt.Errorf("error walking the path: %w", err)
	}
	if found == nil {
		return nil, fmt.Errorf("digest with ID %s not found", id)
	}
	return found, nil
}

// ListDigests retrieves a paginated list of digests, newest first.
func (s *Storage) ListDigests(ctx context.Context, page, pageSize int) ([]*Digest, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var files []string
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking the path: %w", err)
	}

	// Digest filenames lead with the unix timestamp, so a reverse
	// lexicographic sort per directory plus the dated layout yields
	// newest-first without stat calls.
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	start := (page - 1) * pageSize
	if start >= len(files) {
		return []*Digest{}, nil
	}
	end := start + pageSize
	if end > len(files) {
		end = len(files)
	}

	digests := make([]*Digest, 0, end-start)
	for _, file := range files[start:end] {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("error reading file %s: %w", file, err)
		}

		var digest Digest
		if err := json.Unmarshal(data, &digest); err != nil {
			return nil, fmt.Errorf("error unmarshaling digest: %w", err)
		}
		digests = append(digests, &digest)
	}
	return digests, nil
}
