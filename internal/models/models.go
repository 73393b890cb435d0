package models

import (
	"strings"
	"time"
)

// FeedSource is one configured upstream feed belonging to a region.
type FeedSource struct {
	Region string `json:"region"`
	Label  string `json:"label" validate:"required"`
	URL    string `json:"url" validate:"required,url"`
}

// RegionConfig groups the feed sources and delivery settings of one region.
type RegionConfig struct {
	Code       string       `json:"code" validate:"required,min=2,max=8"`
	Title      string       `json:"title" validate:"required"`
	Color      int          `json:"color"`
	WebhookURL string       `json:"webhook_url" validate:"omitempty,url"`
	Sources    []FeedSource `json:"sources" validate:"required,min=1,dive"`
}

// NewsItem is the canonical item record every upstream entry is normalized
// into. PublishedAtMs falls back to ingestion time when no feed date parses;
// items without a Link are dropped by the freshness filter downstream.
type NewsItem struct {
	Region        string `json:"region"`
	Source        string `json:"source"`
	Title         string `json:"title"`
	Link          string `json:"link"`
	GUID          string `json:"guid,omitempty"`
	PublishedAtMs int64  `json:"published_at_ms"`
	Snippet       string `json:"snippet,omitempty"`
}

// Fingerprint derives the stable identity key of an item: the feed GUID when
// present, otherwise the link, otherwise the title. Two items sharing a
// fingerprint are the same real-world item even across separate fetches.
func (n NewsItem) Fingerprint() string {
	for _, candidate := range []string{n.GUID, n.Link, n.Title} {
		if s := strings.TrimSpace(candidate); s != "" {
			return s
		}
	}
	return ""
}

// PublishedAt returns the publish timestamp as time.Time.
func (n NewsItem) PublishedAt() time.Time {
	return time.UnixMilli(n.PublishedAtMs)
}

// TopicCluster is one classifier-assigned group of items, newest first.
// Rebuilt every run, never persisted.
type TopicCluster struct {
	Key   string     `json:"key"`
	Name  string     `json:"name"`
	Items []NewsItem `json:"items"`
}

// Newest returns the publish time of the most recent item in the cluster.
func (c TopicCluster) Newest() time.Time {
	if len(c.Items) == 0 {
		return time.Time{}
	}
	return c.Items[0].PublishedAt()
}
