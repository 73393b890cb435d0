package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/regionbrief/regionbrief/internal/models"
	"github.com/regionbrief/regionbrief/internal/utils"
)

// RedisStore keeps dedup records as per-region keys with the retention
// window as TTL, so pruning happens server-side and Load/Persist are no-ops.
// Fingerprints are hashed to bound key size; raw fingerprints can be
// arbitrarily long upstream GUIDs or URLs.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
	now       func() time.Time
}

func NewRedisStore(url, prefix string, retention time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client:    client,
		prefix:    prefix,
		retention: retention,
		now:       time.Now,
	}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(region, fingerprint string) string {
	return s.prefix + "seen:" + region + ":" + utils.Hash(fingerprint)
}

// Load is a no-op: state lives server-side.
func (s *RedisStore) Load(ctx context.Context) error { return nil }

// Persist is a no-op: every MarkConsumed write is already durable.
func (s *RedisStore) Persist(ctx context.Context) error { return nil }

func (s *RedisStore) IsFresh(ctx context.Context, region string, item models.NewsItem, freshness time.Duration) (bool, error) {
	fingerprint := item.Fingerprint()
	if fingerprint == "" {
		return false, nil
	}

	cutoff := s.now().Add(-freshness).UnixMilli()
	if item.PublishedAtMs < cutoff {
		return false, nil
	}

	exists, err := s.client.Exists(ctx, s.key(region, fingerprint)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check dedup record: %w", err)
	}
	return exists == 0, nil
}

func (s *RedisStore) MarkConsumed(ctx context.Context, region string, items []models.NewsItem) error {
	nowMs := s.now().UnixMilli()

	pipe := s.client.Pipeline()
	for _, item := range items {
		fingerprint := item.Fingerprint()
		if fingerprint == "" {
			continue
		}
		pipe.Set(ctx, s.key(region, fingerprint), nowMs, s.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark items consumed: %w", err)
	}
	return nil
}

// Prune is a no-op: the retention TTL on every record handles expiry.
func (s *RedisStore) Prune(ctx context.Context, retention time.Duration) (int, error) {
	return 0, nil
}

func (s *RedisStore) Stats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int)

	iter := s.client.Scan(ctx, 0, s.prefix+"seen:*", 0).Iterator()
	for iter.Next(ctx) {
		rest := strings.TrimPrefix(iter.Val(), s.prefix+"seen:")
		region, _, found := strings.Cut(rest, ":")
		if !found {
			continue
		}
		stats[region]++
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan dedup records: %w", err)
	}
	return stats, nil
}
