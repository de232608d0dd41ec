package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one list per session, one JSON record per entry.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string        // Redis server address (e.g., "localhost:6379")
	Password string        // Redis password (if any)
	DB       int           // Redis database number
	Prefix   string        // Key prefix for namespacing
	TTL      time.Duration // Expiry refreshed on every append (0 means none)
}

// NewRedisStore creates a Redis-backed store. The connection is lazy; call
// Ping to verify it.
func NewRedisStore(config *RedisConfig) *RedisStore {
	if config == nil {
		config = &RedisConfig{Addr: "localhost:6379"}
	}
	if config.Prefix == "" {
		config.Prefix = "ai-advocate:session:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisStore{
		client: client,
		prefix: config.Prefix,
		ttl:    config.TTL,
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Append implements Recorder.
func (s *RedisStore) Append(ctx context.Context, rec *Record) error {
	if err := prepare(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	key := s.key(rec.SessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append record to Redis: %w", err)
	}
	return nil
}

// History implements HistoryReader.
func (s *RedisStore) History(ctx context.Context, sessionID string) ([]*Record, error) {
	entries, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	records := make([]*Record, 0, len(entries))
	for _, entry := range entries {
		var rec Record
		if err := json.Unmarshal([]byte(entry), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, nil
}

// Ping checks if Redis connection is alive
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
