package notify

import (
	"context"
	"time"
)

// Headline is one ranked line inside a notification.
type Headline struct {
	Rank    int
	Title   string
	Link    string
	Summary string
	Source  string
}

// Notification is one delivery unit: a single topic cluster for a single
// region. The pipeline guarantees at most one notification per non-empty
// cluster per run.
type Notification struct {
	Region      string
	RegionTitle string
	RegionColor int
	WebhookURL  string
	TopicKey    string
	TopicName   string
	Headlines   []Headline
	Newest      time.Time
}

// Sink delivers notifications. Implementations must treat a failed delivery
// as local to that notification; the pipeline continues with siblings.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// NoopSink swallows notifications. Used when no delivery target is
// configured, so the pipeline still exercises its full path.
type NoopSink struct{}

func (NoopSink) Send(ctx context.Context, n Notification) error { return nil }
