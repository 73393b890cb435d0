// Package pipeline composes fetch, normalize, dedup-filter, classify,
// cluster, and emit into one run per region. A run is a forward-only state
// machine: FETCHING, FILTERING, CLUSTERING, EMITTING, COMPLETE. The dedup
// store is the only state that survives a run.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/regionbrief/regionbrief/internal/archive"
	"github.com/regionbrief/regionbrief/internal/config"
	"github.com/regionbrief/regionbrief/internal/dedup"
	"github.com/regionbrief/regionbrief/internal/feed"
	"github.com/regionbrief/regionbrief/internal/logger"
	"github.com/regionbrief/regionbrief/internal/models"
	"github.com/regionbrief/regionbrief/internal/notify"
	"github.com/regionbrief/regionbrief/internal/storage"
	"github.com/regionbrief/regionbrief/internal/topic"
)

// DefaultFallbackSliceLimit bounds the recency slice shown when aggressive
// posting is enabled and nothing passed the freshness filter.
const DefaultFallbackSliceLimit = 10

// Fetcher is the fetch stage contract; satisfied by *feed.Fetcher.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []models.FeedSource) ([]models.NewsItem, []feed.SourceResult)
}

// Options are the per-run parameters taken from configuration.
type Options struct {
	MaxHeadlinesPerTopic int
	FreshnessWindow      time.Duration
	RetentionWindow      time.Duration
	AggressivePosting    bool
	FallbackSliceLimit   int
}

// RunResult summarizes one region run for logging and the API response.
type RunResult struct {
	Region         string `json:"region"`
	Collected      int    `json:"collected"`
	SourceFailures int    `json:"source_failures"`
	Fresh          int    `json:"fresh"`
	Pruned         int    `json:"pruned"`
	Clusters       int    `json:"clusters"`
	Emitted        int    `json:"emitted"`
	EmitFailures   int    `json:"emit_failures"`
	Fallback       bool   `json:"fallback"`
	PersistError   string `json:"persist_error,omitempty"`
}

type Pipeline struct {
	feeds      *config.Feeds
	fetcher    Fetcher
	store      dedup.Store
	sink       notify.Sink
	classifier *topic.Classifier
	digests    *storage.Storage
	uploader   *archive.Uploader
	opts       Options

	// storeMu scopes one load-mutate-persist cycle on the dedup store. The
	// ticker loop and the on-demand API run concurrently; without this, a
	// reload from another caller could land between MarkConsumed and
	// Persist and drop the run's marks.
	storeMu sync.Mutex

	now func() time.Time
}

// New assembles a pipeline. digests and uploader may be nil to disable the
// respective archive.
func New(feeds *config.Feeds, fetcher Fetcher, store dedup.Store, sink notify.Sink,
	classifier *topic.Classifier, digests *storage.Storage, uploader *archive.Uploader,
	opts Options) *Pipeline {

	if opts.FallbackSliceLimit <= 0 {
		opts.FallbackSliceLimit = DefaultFallbackSliceLimit
	}
	return &Pipeline{
		feeds:      feeds,
		fetcher:    fetcher,
		store:      store,
		sink:       sink,
		classifier: classifier,
		digests:    digests,
		uploader:   uploader,
		opts:       opts,
		now:        time.Now,
	}
}

// Run executes the full state machine for one region.
func (p *Pipeline) Run(ctx context.Context, regionCode string) (RunResult, error) {
	log := logger.Get()
	start := p.now()

	region, ok := p.feeds.Region(regionCode)
	if !ok {
		return RunResult{Region: regionCode}, fmt.Errorf("unknown region %q", regionCode)
	}
	result := RunResult{Region: region.Code}

	// FETCHING: every configured source; partial or total failure degrades
	// to fewer or zero items.
	collected, sourceResults := p.fetcher.FetchAll(ctx, region.Sources)
	for _, res := range sourceResults {
		if res.Err != nil {
			result.SourceFailures++
		}
	}

	// Items without a resolvable link are never delivered: the link is the
	// fingerprint fallback and the only way for a reader to reach the story.
	deliverable := collected[:0:0]
	for _, item := range collected {
		if item.Link != "" {
			deliverable = append(deliverable, item)
		}
	}
	result.Collected = len(deliverable)

	log.Info().
		Str("region", region.Code).
		Int("collected", result.Collected).
		Int("source_failures", result.SourceFailures).
		Dur("fetch_duration", time.Since(start)).
		Msg("Fetched region sources")

	// FILTERING against the persistent dedup state. The lock is held through
	// COMPLETE so this run's marks reach the persisted state intact.
	p.storeMu.Lock()
	defer p.storeMu.Unlock()

	if err := p.store.Load(ctx); err != nil {
		return result, fmt.Errorf("load dedup store: %w", err)
	}

	pruned, err := p.store.Prune(ctx, p.opts.RetentionWindow)
	if err != nil {
		log.Warn().Str("region", region.Code).Err(err).Msg("Prune failed, continuing")
	}
	result.Pruned = pruned

	var fresh []models.NewsItem
	for _, item := range deliverable {
		ok, err := p.store.IsFresh(ctx, region.Code, item, p.opts.FreshnessWindow)
		if err != nil {
			log.Warn().Str("region", region.Code).Str("link", item.Link).Err(err).
				Msg("Freshness check failed, skipping item")
			continue
		}
		if ok {
			fresh = append(fresh, item)
		}
	}
	result.Fresh = len(fresh)

	chosen := fresh
	if len(fresh) == 0 {
		if !p.opts.AggressivePosting {
			// Explicit no-op completion: nothing new, nothing emitted.
			result.PersistError = p.persist(ctx, region.Code)
			log.Info().
				Str("region", region.Code).
				Int("pruned", result.Pruned).
				Msg("No fresh items, skipping emission")
			return result, nil
		}
		// Aggressive mode: show a bounded recency slice of everything
		// collected. Nothing on this path is marked consumed, so the
		// backlog is not burned.
		chosen = deliverable[:min(p.opts.FallbackSliceLimit, len(deliverable))]
		result.Fallback = true
	}

	// CLUSTERING.
	clusters := p.classifier.Cluster(chosen, p.opts.MaxHeadlinesPerTopic)
	result.Clusters = len(clusters)

	// EMITTING: one notification per non-empty cluster; a failed delivery
	// never blocks sibling clusters.
	for _, cluster := range clusters {
		if err := p.sink.Send(ctx, p.notification(region, cluster)); err != nil {
			result.EmitFailures++
			log.Error().
				Str("region", region.Code).
				Str("topic", cluster.Key).
				Err(err).
				Msg("Notification delivery failed")
			continue
		}
		result.Emitted++
	}

	if len(clusters) > 0 {
		p.recordDigest(ctx, region.Code, clusters, result.Fallback)
	}

	// COMPLETE: only the truly-fresh path marks items consumed.
	if !result.Fallback && len(fresh) > 0 {
		if err := p.store.MarkConsumed(ctx, region.Code, fresh); err != nil {
			log.Error().Str("region", region.Code).Err(err).Msg("Failed to mark items consumed")
		}
	}
	result.PersistError = p.persist(ctx, region.Code)

	log.Info().
		Str("region", region.Code).
		Int("fresh", result.Fresh).
		Int("clusters", result.Clusters).
		Int("emitted", result.Emitted).
		Int("emit_failures", result.EmitFailures).
		Bool("fallback", result.Fallback).
		Dur("total_duration", time.Since(start)).
		Msg("Region run complete")

	return result, nil
}

// RunAll iterates the state machine once per configured region,
// sequentially. Regions share no mutable state beyond the dedup store,
// whose load-mutate-persist cycle each run holds storeMu for.
func (p *Pipeline) RunAll(ctx context.Context) []RunResult {
	results := make([]RunResult, 0, len(p.feeds.Regions))
	for _, code := range p.feeds.Codes() {
		result, err := p.Run(ctx, code)
		if err != nil {
			logger.Get().Error().Str("region", code).Err(err).Msg("Region run failed")
		}
		results = append(results, result)
	}
	return results
}

// StateStats refreshes the dedup store from its backing state and reports
// per-region record counts.
func (p *Pipeline) StateStats(ctx context.Context) (map[string]int, error) {
	p.storeMu.Lock()
	defer p.storeMu.Unlock()

	if err := p.store.Load(ctx); err != nil {
		return nil, err
	}
	return p.store.Stats(ctx)
}

// PruneState drops dedup records past the retention horizon and persists
// the result. It runs the same load-mutate-persist cycle as a region run
// and takes the same lock.
func (p *Pipeline) PruneState(ctx context.Context) (int, error) {
	p.storeMu.Lock()
	defer p.storeMu.Unlock()

	if err := p.store.Load(ctx); err != nil {
		return 0, err
	}
	removed, err := p.store.Prune(ctx, p.opts.RetentionWindow)
	if err != nil {
		return 0, err
	}
	if err := p.store.Persist(ctx); err != nil {
		return removed, err
	}
	return removed, nil
}

// persist writes the dedup store back; a failure must not crash the run but
// is surfaced because it risks re-delivery next run.
func (p *Pipeline) persist(ctx context.Context, region string) string {
	if err := p.store.Persist(ctx); err != nil {
		logger.Get().Error().Str("region", region).Err(err).
			Msg("Failed to persist dedup store, items may be re-delivered next run")
		return err.Error()
	}
	return ""
}

func (p *Pipeline) notification(region models.RegionConfig, cluster models.TopicCluster) notify.Notification {
	headlines := make([]notify.Headline, 0, len(cluster.Items))
	for i, item := range cluster.Items {
		headlines = append(headlines, notify.Headline{
			Rank:    i + 1,
			Title:   item.Title,
			Link:    item.Link,
			Summary: item.Snippet,
			Source:  item.Source,
		})
	}
	return notify.Notification{
		Region:      region.Code,
		RegionTitle: region.Title,
		RegionColor: region.Color,
		WebhookURL:  region.WebhookURL,
		TopicKey:    cluster.Key,
		TopicName:   cluster.Name,
		Headlines:   headlines,
		Newest:      cluster.Newest(),
	}
}

func (p *Pipeline) recordDigest(ctx context.Context, region string, clusters []models.TopicCluster, fallback bool) {
	if p.digests == nil {
		return
	}

	digest := &storage.Digest{
		Region:   region,
		RanAt:    p.now(),
		Fallback: fallback,
		Clusters: clusters,
	}
	if err := p.digests.SaveDigest(ctx, digest); err != nil {
		logger.Get().Error().Str("region", region).Err(err).Msg("Failed to save run digest")
		return
	}
	if p.uploader != nil {
		if err := p.uploader.UploadDigest(ctx, digest); err != nil {
			logger.Get().Warn().Str("region", region).Err(err).Msg("Failed to archive run digest")
		}
	}
}
