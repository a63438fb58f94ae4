package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/matchlearn/internal/domain/model"
	"github.com/okian/matchlearn/pkg/logger"
	"github.com/okian/matchlearn/pkg/metrics"
)

// RedisStore keeps profiles as JSON strings under prefix+id.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    logger.Logger
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr string, db int, opts ...RedisOption) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewRedisStoreFromClient(client, opts...), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: defaultKeyPrefix,
		log:    logger.Get().Named("profiles"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func observe(op string, start time.Time) {
	metrics.RecordRepositoryLatency(KindRedis, op, float64(time.Since(start).Milliseconds()))
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (model.Profile, error) {
	defer observe("profile_get", time.Now())
	b, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Profile{}, notFound(id)
	}
	if err != nil {
		return model.Profile{}, fmt.Errorf("reading profile %s: %w", id, err)
	}
	var p model.Profile
	if err := json.Unmarshal(b, &p); err != nil {
		return model.Profile{}, fmt.Errorf("decoding profile %s: %w", id, err)
	}
	return p, nil
}

// GetMany implements Store with a single MGET.
func (s *RedisStore) GetMany(ctx context.Context, ids []string) (map[string]model.Profile, error) {
	defer observe("profile_get_many", time.Now())
	out := make(map[string]model.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading profiles: %w", err)
	}
	for i, id := range ids {
		raw, ok := vals[i].(string)
		if !ok {
			continue
		}
		var p model.Profile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			s.log.Warn(ctx, "skipping undecodable profile",
				logger.String("id", id),
				logger.Error(err),
			)
			continue
		}
		out[id] = p
	}
	return out, nil
}

// Put implements Store using one pipeline.
func (s *RedisStore) Put(ctx context.Context, profiles ...model.Profile) error {
	defer observe("profile_put", time.Now())
	if len(profiles) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, p := range profiles {
		if err := validate(p); err != nil {
			return err
		}
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding profile %s: %w", p.ID, err)
		}
		pipe.Set(ctx, s.key(p.ID), b, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing profiles: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error { return s.client.Close() }
