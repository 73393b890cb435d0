package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/regionbrief/regionbrief/internal/config"
	"github.com/regionbrief/regionbrief/internal/dedup"
	"github.com/regionbrief/regionbrief/internal/feed"
	"github.com/regionbrief/regionbrief/internal/models"
	"github.com/regionbrief/regionbrief/internal/notify"
	"github.com/regionbrief/regionbrief/internal/pipeline"
	"github.com/regionbrief/regionbrief/internal/topic"
)

// fakeFetcher replays canned per-source results, mirroring the partitioned
// output of the real fetcher.
type fakeFetcher struct {
	items    []models.NewsItem
	failures []models.FeedSource
}

func (f *fakeFetcher) FetchAll(ctx context.Context, sources []models.FeedSource) ([]models.NewsItem, []feed.SourceResult) {
	results := make([]feed.SourceResult, 0, len(sources))
	for _, src := range sources {
		res := feed.SourceResult{Source: src}
		for _, failed := range f.failures {
			if failed.Label == src.Label {
				res.Err = &feed.FetchError{Source: src.Label, URL: src.URL, Err: errors.New("boom")}
			}
		}
		results = append(results, res)
	}
	return f.items, results
}

// recordingSink captures notifications; topics listed in failTopics fail.
type recordingSink struct {
	sent       []notify.Notification
	failTopics map[string]bool
}

func (s *recordingSink) Send(ctx context.Context, n notify.Notification) error {
	if s.failTopics[n.TopicKey] {
		return errors.New("delivery refused")
	}
	s.sent = append(s.sent, n)
	return nil
}

func testFeeds(t *testing.T) *config.Feeds {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feeds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"regions": [
			{
				"code": "DE",
				"title": "Germany",
				"color": 2067276,
				"sources": [
					{"label": "SourceA", "url": "https://a.example/rss"},
					{"label": "SourceB", "url": "https://b.example/rss"}
				]
			},
			{
				"code": "IT",
				"title": "Italy",
				"sources": [{"label": "SourceC", "url": "https://c.example/rss"}]
			}
		]
	}`), 0644))

	feeds, err := config.LoadFeeds(path)
	require.NoError(t, err)
	return feeds
}

func newsItem(link, title string, age time.Duration) models.NewsItem {
	return models.NewsItem{
		Region:        "DE",
		Source:        "SourceA",
		Title:         title,
		Link:          link,
		PublishedAtMs: time.Now().Add(-age).UnixMilli(),
		Snippet:       "summary of " + title,
	}
}

func defaultOpts() pipeline.Options {
	return pipeline.Options{
		MaxHeadlinesPerTopic: 4,
		FreshnessWindow:      24 * time.Hour,
		RetentionWindow:      96 * time.Hour,
	}
}

func newPipeline(t *testing.T, fetcher pipeline.Fetcher, sink notify.Sink, opts pipeline.Options) (*pipeline.Pipeline, dedup.Store) {
	t.Helper()
	store := dedup.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	classifier := topic.NewClassifier(topic.Default())
	return pipeline.New(testFeeds(t), fetcher, store, sink, classifier, nil, nil, opts), store
}

func TestRunPartialSourceFailureScenario(t *testing.T) {
	ctx := context.Background()

	seen := newsItem("https://a.example/seen", "Parliament session recap", 2*time.Hour)
	freshOne := newsItem("https://a.example/1", "Election results announced", time.Hour)
	freshTwo := newsItem("https://a.example/2", "Missile test condemned", 30*time.Minute)

	fetcher := &fakeFetcher{
		items:    []models.NewsItem{freshTwo, freshOne, seen},
		failures: []models.FeedSource{{Label: "SourceB"}},
	}
	sink := &recordingSink{}
	p, store := newPipeline(t, fetcher, sink, defaultOpts())

	// Pre-existing record for the already-seen item.
	require.NoError(t, store.MarkConsumed(ctx, "DE", []models.NewsItem{seen}))
	require.NoError(t, store.Persist(ctx))

	result, err := p.Run(ctx, "DE")
	require.NoError(t, err)

	require.Equal(t, 1, result.SourceFailures, "failed sibling source is counted, not fatal")
	require.Equal(t, 2, result.Fresh)
	require.GreaterOrEqual(t, result.Clusters, 1)
	require.Equal(t, result.Clusters, result.Emitted)
	require.False(t, result.Fallback)

	var delivered int
	for _, n := range sink.sent {
		delivered += len(n.Headlines)
	}
	require.Equal(t, 2, delivered, "only the two fresh items are delivered")

	// Store now holds the two fresh fingerprints plus the pre-existing one.
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats["DE"])
}

func TestRunIdempotentSecondRun(t *testing.T) {
	ctx := context.Background()

	fetcher := &fakeFetcher{items: []models.NewsItem{
		newsItem("https://a.example/1", "Election results announced", time.Hour),
		newsItem("https://a.example/2", "Budget vote passes", 2*time.Hour),
	}}
	sink := &recordingSink{}
	p, _ := newPipeline(t, fetcher, sink, defaultOpts())

	first, err := p.Run(ctx, "DE")
	require.NoError(t, err)
	require.Positive(t, first.Emitted)

	second, err := p.Run(ctx, "DE")
	require.NoError(t, err)
	require.Zero(t, second.Fresh, "everything was marked consumed on the first run")
	require.Zero(t, second.Emitted)
}

func TestRunMarksSurviveConcurrentStateReads(t *testing.T) {
	ctx := context.Background()

	fetcher := &fakeFetcher{items: []models.NewsItem{
		newsItem("https://a.example/1", "Election results announced", time.Hour),
		newsItem("https://a.example/2", "Budget vote passes", 2*time.Hour),
	}}
	sink := &recordingSink{}
	p, store := newPipeline(t, fetcher, sink, defaultOpts())

	// Hammer the read and prune surfaces while runs are in flight, the way
	// the API does next to the ticker loop.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				_, _ = p.StateStats(ctx)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				_, _ = p.PruneState(ctx)
			}
		}
	}()

	first, err := p.Run(ctx, "DE")
	require.NoError(t, err)
	require.Equal(t, 2, first.Fresh)

	second, err := p.Run(ctx, "DE")
	require.NoError(t, err)
	require.Zero(t, second.Fresh, "marks made by the first run must survive concurrent reloads")
	require.Zero(t, second.Emitted)

	close(done)
	wg.Wait()

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats["DE"])
}

func TestRunNoFreshItemsIsExplicitNoop(t *testing.T) {
	ctx := context.Background()

	item := newsItem("https://a.example/1", "Election results announced", time.Hour)
	fetcher := &fakeFetcher{items: []models.NewsItem{item}}
	sink := &recordingSink{}
	p, store := newPipeline(t, fetcher, sink, defaultOpts())

	require.NoError(t, store.MarkConsumed(ctx, "DE", []models.NewsItem{item}))
	require.NoError(t, store.Persist(ctx))

	result, err := p.Run(ctx, "DE")
	require.NoError(t, err)
	require.Zero(t, result.Fresh)
	require.Zero(t, result.Clusters)
	require.Empty(t, sink.sent)
}

func TestRunAggressiveFallbackLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()

	var items []models.NewsItem
	for i := 0; i < 15; i++ {
		items = append(items, newsItem(
			fmt.Sprintf("https://a.example/%d", i),
			fmt.Sprintf("Parliament session %d", i),
			time.Duration(i)*time.Minute,
		))
	}
	fetcher := &fakeFetcher{items: items}
	sink := &recordingSink{}

	opts := defaultOpts()
	opts.AggressivePosting = true
	p, store := newPipeline(t, fetcher, sink, opts)

	require.NoError(t, store.MarkConsumed(ctx, "DE", items))
	require.NoError(t, store.Persist(ctx))
	before, err := store.Stats(ctx)
	require.NoError(t, err)

	result, err := p.Run(ctx, "DE")
	require.NoError(t, err)

	require.True(t, result.Fallback)
	require.Positive(t, result.Emitted, "aggressive mode emits despite zero fresh items")

	var delivered int
	for _, n := range sink.sent {
		delivered += len(n.Headlines)
	}
	require.LessOrEqual(t, delivered, pipeline.DefaultFallbackSliceLimit,
		"fallback path is a bounded recency slice")

	// Nothing is newly marked consumed on the fallback path.
	after, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestRunEmitFailureDoesNotBlockSiblings(t *testing.T) {
	ctx := context.Background()

	fetcher := &fakeFetcher{items: []models.NewsItem{
		newsItem("https://a.example/1", "Election results announced", time.Hour),
		newsItem("https://a.example/2", "Missile test condemned", 2*time.Hour),
	}}
	sink := &recordingSink{failTopics: map[string]bool{"SECURITY_DEFENSE": true}}
	p, _ := newPipeline(t, fetcher, sink, defaultOpts())

	result, err := p.Run(ctx, "DE")
	require.NoError(t, err)
	require.Equal(t, 2, result.Clusters)
	require.Equal(t, 1, result.Emitted)
	require.Equal(t, 1, result.EmitFailures)
	require.Len(t, sink.sent, 1)
	require.Equal(t, "POLITICS", sink.sent[0].TopicKey)
}

func TestRunExcludesLinklessItems(t *testing.T) {
	ctx := context.Background()

	linkless := models.NewsItem{
		Region: "DE", Source: "SourceA", Title: "Election special", GUID: "guid-x",
		PublishedAtMs: time.Now().Add(-time.Hour).UnixMilli(),
	}
	fetcher := &fakeFetcher{items: []models.NewsItem{linkless}}
	sink := &recordingSink{}
	p, store := newPipeline(t, fetcher, sink, defaultOpts())

	result, err := p.Run(ctx, "DE")
	require.NoError(t, err)
	require.Zero(t, result.Collected)
	require.Empty(t, sink.sent)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Empty(t, stats, "a linkless item is never marked consumed")
}

func TestRunStaleItemExcluded(t *testing.T) {
	ctx := context.Background()

	// 30h old with a 24h freshness window: excluded even though unseen.
	fetcher := &fakeFetcher{items: []models.NewsItem{
		newsItem("https://a.example/old", "Election archive", 30 * time.Hour),
	}}
	sink := &recordingSink{}
	p, _ := newPipeline(t, fetcher, sink, defaultOpts())

	result, err := p.Run(ctx, "DE")
	require.NoError(t, err)
	require.Zero(t, result.Fresh)
	require.Empty(t, sink.sent)
}

func TestRunUnknownRegion(t *testing.T) {
	p, _ := newPipeline(t, &fakeFetcher{}, &recordingSink{}, defaultOpts())
	_, err := p.Run(context.Background(), "XX")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown region")
}

func TestRunAllCoversEveryRegion(t *testing.T) {
	fetcher := &fakeFetcher{items: []models.NewsItem{
		newsItem("https://a.example/1", "Election results announced", time.Hour),
	}}
	sink := &recordingSink{}
	p, _ := newPipeline(t, fetcher, sink, defaultOpts())

	results := p.RunAll(context.Background())
	require.Len(t, results, 2)
	require.Equal(t, "DE", results[0].Region)
	require.Equal(t, "IT", results[1].Region)
}
