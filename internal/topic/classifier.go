package topic

import (
	"strings"

	"github.com/regionbrief/regionbrief/internal/feed"
	"github.com/regionbrief/regionbrief/internal/models"
)

// Classifier assigns every item to exactly one topic via ordered keyword
// matching. Matching is substring containment over the normalized title and
// snippet; no tokenizing or stemming.
type Classifier struct {
	topics []Topic
}

// NewClassifier builds a classifier over an ordered topic list. Keywords are
// case-folded up front so matching against the lowercased haystack works for
// any caller-supplied casing. A fallback topic is appended when the list
// does not already end with one.
func NewClassifier(topics []Topic) *Classifier {
	folded := make([]Topic, len(topics))
	for i, t := range topics {
		keywords := make([]string, len(t.Keywords))
		for j, keyword := range t.Keywords {
			keywords[j] = strings.ToLower(keyword)
		}
		t.Keywords = keywords
		folded[i] = t
	}
	if len(folded) == 0 || folded[len(folded)-1].Key != KeyOther {
		folded = append(folded, Topic{Key: KeyOther, Name: "Other Topics"})
	}
	return &Classifier{topics: folded}
}

// Topics returns the ordered topic list, fallback included.
func (c *Classifier) Topics() []Topic {
	return c.topics
}

// Classify returns the key of the first topic whose keyword set matches the
// item's text, or the fallback key when nothing matches. Deterministic: the
// topic order is the tie-break.
func (c *Classifier) Classify(item models.NewsItem) string {
	haystack := normalizeText(item.Title + " " + item.Snippet)
	for _, t := range c.topics {
		if t.Key == KeyOther {
			continue
		}
		for _, keyword := range t.Keywords {
			if strings.Contains(haystack, keyword) {
				return t.Key
			}
		}
	}
	return KeyOther
}

func normalizeText(s string) string {
	return strings.ToLower(feed.CleanText(s))
}
