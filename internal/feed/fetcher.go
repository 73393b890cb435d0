package feed

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"

	"github.com/regionbrief/regionbrief/internal/logger"
	"github.com/regionbrief/regionbrief/internal/models"
)

// Several upstreams answer 400/403 to anonymous requests, so every request
// carries an identifying User-Agent and an Accept header enumerating the
// feed content types we handle.
const (
	userAgent    = "regionbrief/1.0 (+https://github.com/regionbrief/regionbrief)"
	acceptHeader = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.7"
)

// FetchError reports the failure of a single source: transport error,
// non-success status, or an unparseable payload. One source failing never
// aborts its siblings; the next scheduled run is the retry mechanism.
type FetchError struct {
	Source string
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.Source, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SourceResult is the outcome of fetching one source.
type SourceResult struct {
	Source models.FeedSource
	Items  []models.NewsItem
	Err    error
}

type Fetcher struct {
	client   *resty.Client
	maxItems int
}

// NewFetcher creates a fetcher with a bounded request timeout and a cap on
// the number of entries consumed per source.
func NewFetcher(timeout time.Duration, maxItemsPerSource int) *Fetcher {
	return &Fetcher{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent).
			SetHeader("Accept", acceptHeader),
		maxItems: maxItemsPerSource,
	}
}

// Fetch retrieves and parses one source, returning normalized items.
func (f *Fetcher) Fetch(ctx context.Context, src models.FeedSource) ([]models.NewsItem, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		Get(src.URL)
	if err != nil {
		return nil, &FetchError{Source: src.Label, URL: src.URL, Err: err}
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, &FetchError{
			Source: src.Label,
			URL:    src.URL,
			Err:    fmt.Errorf("unexpected status code %d", resp.StatusCode()),
		}
	}

	parsed, err := gofeed.NewParser().ParseString(string(resp.Body()))
	if err != nil {
		return nil, &FetchError{Source: src.Label, URL: src.URL, Err: fmt.Errorf("parse feed: %w", err)}
	}

	return NormalizeFeed(parsed, src, f.maxItems, time.Now()), nil
}

// FetchAll fetches every source concurrently and partitions the outcomes.
// Failed sources are logged and contribute zero items; the merged item list
// is sorted newest first.
func (f *Fetcher) FetchAll(ctx context.Context, sources []models.FeedSource) ([]models.NewsItem, []SourceResult) {
	log := logger.Get()

	results := make(chan SourceResult, len(sources))
	for _, src := range sources {
		go func(src models.FeedSource) {
			items, err := f.Fetch(ctx, src)
			results <- SourceResult{Source: src, Items: items, Err: err}
		}(src)
	}

	var allItems []models.NewsItem
	collected := make([]SourceResult, 0, len(sources))
	for range sources {
		res := <-results
		collected = append(collected, res)
		if res.Err != nil {
			log.Warn().
				Str("region", res.Source.Region).
				Str("source", res.Source.Label).
				Err(res.Err).
				Msg("Feed fetch failed, skipping source")
			continue
		}
		allItems = append(allItems, res.Items...)
	}

	sort.SliceStable(allItems, func(i, j int) bool {
		return allItems[i].PublishedAtMs > allItems[j].PublishedAtMs
	})

	return allItems, collected
}
