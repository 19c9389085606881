package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"agribot/internal/logger"
	"agribot/internal/models"
)

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisClient connects to redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// RedisStore keeps each user's readings in one hash: field = store key,
// value = JSON reading document.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps a connected client
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "sensor_data:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

// Snapshot reads the user's hash. A malformed stored document fails the
// whole snapshot.
func (s *RedisStore) Snapshot(ctx context.Context, userID string) (models.Snapshot, error) {
	if userID == "" {
		return models.Snapshot{}, ErrEmptyUserID
	}

	fields, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("redis hgetall %s: %w", s.key(userID), err)
	}

	snap, err := decodeHash(fields)
	if err != nil {
		log := logger.WithComponent("redis_store")
		log.Error().Err(err).Str("user_id", userID).Msg("malformed reading in store")
		return models.Snapshot{}, err
	}
	return snap, nil
}

// Append writes a reading under a key that sorts by timestamp
func (s *RedisStore) Append(ctx context.Context, userID string, reading models.Reading) (string, error) {
	if userID == "" {
		return "", ErrEmptyUserID
	}
	if err := reading.Validate(); err != nil {
		return "", err
	}

	data, err := json.Marshal(reading)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%013d-%s", reading.Timestamp, uuid.New().String()[:8])
	if err := s.client.HSet(ctx, s.key(userID), key, data).Err(); err != nil {
		return "", fmt.Errorf("redis hset %s: %w", s.key(userID), err)
	}
	return key, nil
}

// Close closes the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// decodeHash turns HGETALL output into a snapshot
func decodeHash(fields map[string]string) (models.Snapshot, error) {
	readings := make(map[string]models.Reading, len(fields))
	for k, v := range fields {
		r, err := models.DecodeReading(k, []byte(v))
		if err != nil {
			return models.Snapshot{}, err
		}
		readings[k] = r
	}
	return models.NewSnapshot(readings), nil
}
