package dedup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/regionbrief/regionbrief/internal/models"
)

func newTestStore(t *testing.T) (*FileStore, *time.Time) {
	t.Helper()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	store.now = func() time.Time { return now }
	return store, &now
}

func freshItem(link string, now time.Time) models.NewsItem {
	return models.NewsItem{Link: link, Title: "t", PublishedAtMs: now.Add(-time.Hour).UnixMilli()}
}

func TestIsFreshRules(t *testing.T) {
	ctx := context.Background()
	store, nowRef := newTestStore(t)
	now := *nowRef

	item := freshItem("https://example.org/a", now)

	fresh, err := store.IsFresh(ctx, "DE", item, 24*time.Hour)
	require.NoError(t, err)
	require.True(t, fresh, "unseen recent item must be fresh")

	// Empty fingerprint is never fresh.
	fresh, err = store.IsFresh(ctx, "DE", models.NewsItem{PublishedAtMs: now.UnixMilli()}, 24*time.Hour)
	require.NoError(t, err)
	require.False(t, fresh)

	// Items older than the freshness window are excluded even if unseen.
	stale := models.NewsItem{Link: "https://example.org/old", PublishedAtMs: now.Add(-30 * time.Hour).UnixMilli()}
	fresh, err = store.IsFresh(ctx, "DE", stale, 24*time.Hour)
	require.NoError(t, err)
	require.False(t, fresh)

	// A consumed item is no longer fresh for that region...
	require.NoError(t, store.MarkConsumed(ctx, "DE", []models.NewsItem{item}))
	fresh, err = store.IsFresh(ctx, "DE", item, 24*time.Hour)
	require.NoError(t, err)
	require.False(t, fresh)

	// ...but remains fresh for a different region namespace.
	fresh, err = store.IsFresh(ctx, "IT", item, 24*time.Hour)
	require.NoError(t, err)
	require.True(t, fresh)
}

func TestPersistLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "state.json")

	store := NewFileStore(path)
	store.now = func() time.Time { return now }
	require.NoError(t, store.Load(ctx))
	require.NoError(t, store.MarkConsumed(ctx, "DE", []models.NewsItem{freshItem("https://example.org/a", now)}))
	require.NoError(t, store.Persist(ctx))

	reloaded := NewFileStore(path)
	reloaded.now = func() time.Time { return now }
	require.NoError(t, reloaded.Load(ctx))

	fresh, err := reloaded.IsFresh(ctx, "DE", freshItem("https://example.org/a", now), 24*time.Hour)
	require.NoError(t, err)
	require.False(t, fresh, "consumed fingerprint must survive a restart")

	stats, err := reloaded.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"DE": 1}, stats)
}

func TestLoadKeepsUnpersistedMarks(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "state.json")

	store := NewFileStore(path)
	store.now = func() time.Time { return now }
	require.NoError(t, store.Load(ctx))
	require.NoError(t, store.MarkConsumed(ctx, "DE", []models.NewsItem{freshItem("https://example.org/a", now)}))

	// A reader refreshing from disk mid-run must not wipe marks that have
	// not been persisted yet.
	require.NoError(t, store.Load(ctx))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"DE": 1}, stats)

	require.NoError(t, store.Persist(ctx))

	reloaded := NewFileStore(path)
	reloaded.now = func() time.Time { return now }
	require.NoError(t, reloaded.Load(ctx))
	stats, err = reloaded.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"DE": 1}, stats)
}

func TestLoadToleratesMissingAndCorruptFile(t *testing.T) {
	ctx := context.Background()

	missing := NewFileStore(filepath.Join(t.TempDir(), "nope", "state.json"))
	require.NoError(t, missing.Load(ctx), "missing state file is not fatal")

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	corrupt := NewFileStore(path)
	require.NoError(t, corrupt.Load(ctx), "corrupt state file degrades to empty store")

	stats, err := corrupt.Stats(ctx)
	require.NoError(t, err)
	require.Empty(t, stats)
}

func TestPruningLaw(t *testing.T) {
	ctx := context.Background()
	store, nowRef := newTestStore(t)
	markedAt := *nowRef
	retention := 96 * time.Hour

	require.NoError(t, store.MarkConsumed(ctx, "DE", []models.NewsItem{freshItem("https://example.org/a", markedAt)}))

	// Strictly inside the retention window: record present.
	*nowRef = markedAt.Add(retention - time.Minute)
	removed, err := store.Prune(ctx, retention)
	require.NoError(t, err)
	require.Zero(t, removed)

	stats, _ := store.Stats(ctx)
	require.Equal(t, 1, stats["DE"])

	// At or past the horizon: record gone.
	*nowRef = markedAt.Add(retention + time.Minute)
	removed, err = store.Prune(ctx, retention)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	stats, _ = store.Stats(ctx)
	require.Empty(t, stats)
}

func TestMarkConsumedSkipsEmptyFingerprints(t *testing.T) {
	ctx := context.Background()
	store, nowRef := newTestStore(t)

	require.NoError(t, store.MarkConsumed(ctx, "DE", []models.NewsItem{
		{},
		freshItem("https://example.org/a", *nowRef),
	}))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats["DE"])
}
