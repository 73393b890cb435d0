package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// Discord rejects embed descriptions beyond 4096 runes; headline
	// summaries are trimmed well below that.
	summaryMaxLen = 160

	defaultEmbedColor = 0x2f3136
)

// DiscordSink posts one embed per topic cluster to the region's webhook.
type DiscordSink struct {
	client *resty.Client
}

func NewDiscordSink(timeout time.Duration) *DiscordSink {
	return &DiscordSink{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Footer      *discordFooter `json:"footer,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

func (s *DiscordSink) Send(ctx context.Context, n Notification) error {
	if n.WebhookURL == "" {
		return fmt.Errorf("region %s has no webhook configured", n.Region)
	}

	payload := discordPayload{Embeds: []discordEmbed{renderEmbed(n)}}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(n.WebhookURL)
	if err != nil {
		return fmt.Errorf("failed to deliver notification for %s/%s: %w", n.Region, n.TopicKey, err)
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook for %s/%s answered status %d", n.Region, n.TopicKey, resp.StatusCode())
	}
	return nil
}

func renderEmbed(n Notification) discordEmbed {
	lines := make([]string, 0, len(n.Headlines)+1)
	for _, h := range n.Headlines {
		lines = append(lines, fmt.Sprintf("**%d. [%s](%s)**\n%s\n_Source: %s_",
			h.Rank, h.Title, h.Link, ShortSummary(h.Summary, summaryMaxLen), h.Source))
	}
	lines = append(lines, relevanceNote(n.TopicKey))

	color := n.RegionColor
	if color == 0 {
		color = defaultEmbedColor
	}

	embed := discordEmbed{
		Title:       fmt.Sprintf("%s — %s", n.RegionTitle, n.TopicName),
		Description: strings.Join(lines, "\n\n"),
		Color:       color,
	}
	if !n.Newest.IsZero() {
		embed.Footer = &discordFooter{Text: "Updated: " + n.Newest.UTC().Format("2006-01-02 15:04 MST")}
		embed.Timestamp = n.Newest.UTC().Format(time.RFC3339)
	}
	return embed
}

// ShortSummary collapses whitespace and truncates to maxLen with an ellipsis.
func ShortSummary(text string, maxLen int) string {
	clean := strings.Join(strings.Fields(text), " ")
	if clean == "" {
		return "No preview available from this feed yet."
	}
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	return string(runes[:maxLen-1]) + "…"
}

// relevanceNote adds a one-line reason a topic matters to the embed, so a
// notification is more than a raw headline list.
func relevanceNote(topicKey string) string {
	switch topicKey {
	case "SECURITY_DEFENSE":
		return "Why it matters: can directly affect the security situation, decisions, and alliance policy."
	case "POLITICS":
		return "Why it matters: shapes near-term decisions, budgets, and the domestic political situation."
	case "ECONOMY":
		return "Why it matters: can move prices, markets, jobs, and the investment climate."
	case "MIGRATION":
		return "Why it matters: affects public debate, authorities, capacities, and policy decisions."
	case "ENERGY_CLIMATE":
		return "Why it matters: affects costs, supply security, and regulatory measures."
	case "TECH_SCIENCE":
		return "Why it matters: influences innovation, competitiveness, and regulation."
	default:
		return "Why it matters: an ongoing development with possible knock-on effects in several areas."
	}
}
