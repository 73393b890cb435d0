package feed

import (
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/regionbrief/regionbrief/internal/models"
)

// UntitledPlaceholder stands in for entries the upstream ships without a title.
const UntitledPlaceholder = "(untitled)"

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// CleanText removes HTML tags, unescapes entities, and collapses whitespace.
func CleanText(input string) string {
	cleaned := htmlTagRegex.ReplaceAllString(input, " ")
	cleaned = html.UnescapeString(cleaned)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	return strings.TrimSpace(cleaned)
}

// NormalizeFeed converts a parsed feed into canonical NewsItems for the
// given source, consuming at most maxItems entries. Pure: no network or
// disk access, the ingestion time is passed in by the caller.
func NormalizeFeed(parsed *gofeed.Feed, src models.FeedSource, maxItems int, now time.Time) []models.NewsItem {
	if parsed == nil || len(parsed.Items) == 0 {
		return nil
	}

	entries := parsed.Items
	if maxItems > 0 && len(entries) > maxItems {
		entries = entries[:maxItems]
	}

	items := make([]models.NewsItem, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		items = append(items, NormalizeItem(entry, src, now))
	}
	return items
}

// NormalizeItem maps one upstream entry into the canonical record.
func NormalizeItem(entry *gofeed.Item, src models.FeedSource, now time.Time) models.NewsItem {
	title := CleanText(entry.Title)
	if title == "" {
		title = UntitledPlaceholder
	}

	snippet := CleanText(entry.Description)
	if snippet == "" {
		snippet = CleanText(entry.Content)
	}

	return models.NewsItem{
		Region:        src.Region,
		Source:        src.Label,
		Title:         title,
		Link:          strings.TrimSpace(entry.Link),
		GUID:          strings.TrimSpace(entry.GUID),
		PublishedAtMs: publishedAtMs(entry, now),
		Snippet:       snippet,
	}
}

// publishedAtMs picks whichever parsed date field is present, falling back
// to the ingestion time when the feed carries none.
func publishedAtMs(entry *gofeed.Item, now time.Time) int64 {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed.UnixMilli()
	}
	if entry.UpdatedParsed != nil {
		return entry.UpdatedParsed.UnixMilli()
	}
	return now.UnixMilli()
}
