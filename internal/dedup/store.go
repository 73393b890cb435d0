// Package dedup owns the only cross-run persistent state of the pipeline:
// the per-region mapping of item fingerprints to the epoch-millisecond they
// were last delivered.
package dedup

import (
	"context"
	"time"

	"github.com/regionbrief/regionbrief/internal/models"
)

// Store is the dedup state accessor the pipeline runs against. An entry
// exists only if that fingerprint has been delivered at least once for that
// region; entries older than the retention horizon are eventually pruned.
type Store interface {
	// Load refreshes in-memory state from the backing medium without
	// discarding marks made since the last Persist. Absence or corruption
	// of persisted state yields an empty store, never an error that fails
	// the run.
	Load(ctx context.Context) error

	// Persist writes the current state back. A failure is surfaced to the
	// caller because it risks re-delivering already-seen items next run.
	Persist(ctx context.Context) error

	// IsFresh reports whether an item is deliverable: it has a non-empty
	// fingerprint, its publish time lies within the freshness window, and
	// its fingerprint has no record for the region yet.
	IsFresh(ctx context.Context, region string, item models.NewsItem, freshness time.Duration) (bool, error)

	// MarkConsumed records fingerprints of items actually delivered in the
	// current run. Items shown as a display fallback are never marked.
	MarkConsumed(ctx context.Context, region string, items []models.NewsItem) error

	// Prune forgets records older than the retention horizon and returns
	// how many were removed. Retention must exceed the freshness window.
	Prune(ctx context.Context, retention time.Duration) (int, error)

	// Stats returns the number of records held per region.
	Stats(ctx context.Context) (map[string]int, error)
}
