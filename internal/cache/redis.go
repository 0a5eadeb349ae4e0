package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Customer summary cache keys
const (
	customerSummaryKeyFmt = "khata:customers:%d"
	summaryTTL            = 5 * time.Minute
)

// Store caches per-owner customer summaries. A nil client disables caching.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to redisURL. An empty URL returns a disabled store.
// A failed ping also returns a disabled store together with the error.
func New(redisURL string) (*Store, error) {
	if redisURL == "" {
		return &Store{ttl: summaryTTL}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return &Store{ttl: summaryTTL}, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		// Close the failed client and degrade to no cache
		client.Close()
		return &Store{ttl: summaryTTL}, err
	}
	return &Store{client: client, ttl: summaryTTL}, nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Enabled reports whether a redis client is configured
func (s *Store) Enabled() bool {
	return s != nil && s.client != nil
}

// GetCustomerSummaries loads the cached summaries of an owner into dst
func (s *Store) GetCustomerSummaries(ctx context.Context, ownerID uint, dst interface{}) bool {
	if !s.Enabled() {
		return false
	}
	data, err := s.client.Get(ctx, fmt.Sprintf(customerSummaryKeyFmt, ownerID)).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

// CacheCustomerSummaries stores an owner's summaries
func (s *Store) CacheCustomerSummaries(ctx context.Context, ownerID uint, summaries interface{}) {
	if !s.Enabled() {
		return
	}
	data, err := json.Marshal(summaries)
	if err != nil {
		return
	}
	s.client.Set(ctx, fmt.Sprintf(customerSummaryKeyFmt, ownerID), data, s.ttl)
}

// InvalidateCustomerSummaries drops an owner's cached summaries
func (s *Store) InvalidateCustomerSummaries(ctx context.Context, ownerID uint) {
	if !s.Enabled() {
		return
	}
	s.client.Del(ctx, fmt.Sprintf(customerSummaryKeyFmt, ownerID))
}

// Close releases the client
func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.client.Close()
}
