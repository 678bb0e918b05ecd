package redis

import (
	"context"
	"errors"
	"time"

	"ride-settlement/internal/ports"

	"github.com/redis/go-redis/v9"
)

const processedPrefix = "settlement:processed:"

// DefaultProcessedTTL bounds how long a processed id stays cached.
const DefaultProcessedTTL = 24 * time.Hour

// ProcessedStore caches processed message ids in front of the database ledger.
type ProcessedStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProcessedStore creates a new ProcessedStore.
func NewProcessedStore(client *redis.Client, ttl time.Duration) ports.ProcessedCache {
	if ttl <= 0 {
		ttl = DefaultProcessedTTL
	}
	return &ProcessedStore{client: client, ttl: ttl}
}

// Seen reports a cache hit. A miss says nothing; the database decides.
func (s *ProcessedStore) Seen(ctx context.Context, messageID string) (bool, error) {
	err := s.client.Get(ctx, processedPrefix+messageID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Remember caches messageID as processed.
func (s *ProcessedStore) Remember(ctx context.Context, messageID string) error {
	return s.client.Set(ctx, processedPrefix+messageID, "1", s.ttl).Err()
}
