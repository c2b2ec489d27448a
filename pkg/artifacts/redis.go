package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps artifacts in Redis so several predictor replicas can load
// the same set. Keys are "courtcast:model:{target}" and
// "courtcast:ensemble:{target}".
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewRedisStore connects to Redis and verifies the connection.
//
// A ttl of 0 stores artifacts without expiry, which is what a deployed model
// set normally wants; a positive ttl lets stale sets age out.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if ttl < 0 {
		return nil, errors.New("redis ttl must be >= 0")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func modelKey(target string) string    { return "courtcast:model:" + target }
func ensembleKey(target string) string { return "courtcast:ensemble:" + target }

func (r *RedisStore) SaveModel(ctx context.Context, a *ModelArtifact) error {
	if err := checkTarget(a.Target); err != nil {
		return err
	}
	return r.put(ctx, modelKey(a.Target), a)
}

func (r *RedisStore) LoadModel(ctx context.Context, target string) (*ModelArtifact, bool, error) {
	if err := checkTarget(target); err != nil {
		return nil, false, err
	}
	var a ModelArtifact
	found, err := r.get(ctx, modelKey(target), &a)
	if !found || err != nil {
		return nil, found, err
	}
	return &a, true, nil
}

func (r *RedisStore) SaveEnsemble(ctx context.Context, e *EnsembleArtifact) error {
	if err := checkTarget(e.Target); err != nil {
		return err
	}
	return r.put(ctx, ensembleKey(e.Target), e)
}

func (r *RedisStore) LoadEnsemble(ctx context.Context, target string) (*EnsembleArtifact, bool, error) {
	if err := checkTarget(target); err != nil {
		return nil, false, err
	}
	var e EnsembleArtifact
	found, err := r.get(ctx, ensembleKey(target), &e)
	if !found || err != nil {
		return nil, found, err
	}
	return &e, true, nil
}

func (r *RedisStore) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store %s in redis: %w", key, err)
	}
	return nil
}

func (r *RedisStore) get(ctx context.Context, key string, v any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get %s from redis: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Close closes the Redis client. It is safe to call more than once.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return redis.ErrClosed
	}
	return r.client.Ping(ctx).Err()
}
