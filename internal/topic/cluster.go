package topic

import (
	"sort"

	"github.com/regionbrief/regionbrief/internal/models"
)

// Cluster partitions items by classified topic and returns one cluster per
// observed topic key, in topic-definition order. Items within a cluster are
// sorted by publish time descending and truncated to maxHeadlines, so the
// sink never sees an oversized cluster. Topics with no items produce no
// cluster.
func (c *Classifier) Cluster(items []models.NewsItem, maxHeadlines int) []models.TopicCluster {
	if len(items) == 0 {
		return nil
	}

	groups := make(map[string][]models.NewsItem)
	for _, item := range items {
		key := c.Classify(item)
		groups[key] = append(groups[key], item)
	}

	clusters := make([]models.TopicCluster, 0, len(groups))
	for _, t := range c.topics {
		grouped, ok := groups[t.Key]
		if !ok {
			continue
		}

		sort.SliceStable(grouped, func(i, j int) bool {
			return grouped[i].PublishedAtMs > grouped[j].PublishedAtMs
		})
		if maxHeadlines > 0 && len(grouped) > maxHeadlines {
			grouped = grouped[:maxHeadlines]
		}

		clusters = append(clusters, models.TopicCluster{
			Key:   t.Key,
			Name:  t.Name,
			Items: grouped,
		})
	}

	return clusters
}
