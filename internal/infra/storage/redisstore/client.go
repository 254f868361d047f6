package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neonwatch/neonmon/internal/core/domain"
	"github.com/neonwatch/neonmon/internal/infra/storage"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// Repo implements storage.SignatureRepository on Redis sets.
type Repo struct {
	rdb *redis.Client
}

// New creates a Redis-backed signature repository.
func New(cfg Config) (*Repo, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Repo{rdb: rdb}, nil
}

// Restore loads both signature sets for a network.
func (r *Repo) Restore(
	ctx context.Context,
	chain domain.Chain,
	programID string,
) (storage.SignatureSets, error) {
	sets := storage.SignatureSets{
		Processed: make(map[string]struct{}),
		Failed:    make(map[string]struct{}),
	}

	processed, err := r.rdb.SMembers(ctx, storage.KeyV1(chain, programID, domain.OutcomeProcessed)).Result()
	if err != nil {
		return sets, storage.Unavailable(err)
	}
	failed, err := r.rdb.SMembers(ctx, storage.KeyV1(chain, programID, domain.OutcomeFailed)).Result()
	if err != nil {
		return sets, storage.Unavailable(err)
	}

	for _, sig := range processed {
		sets.Processed[sig] = struct{}{}
	}
	for _, sig := range failed {
		sets.Failed[sig] = struct{}{}
	}
	return sets, nil
}

// Persist records a classified signature. SADD makes replays a no-op.
func (r *Repo) Persist(
	ctx context.Context,
	chain domain.Chain,
	programID, signature string,
	outcome domain.Outcome,
) error {
	key := storage.KeyV1(chain, programID, outcome)
	if err := r.rdb.SAdd(ctx, key, signature).Err(); err != nil {
		return storage.Unavailable(err)
	}
	return nil
}

// LastSignature returns the resume anchor, or "" when absent.
func (r *Repo) LastSignature(
	ctx context.Context,
	chain domain.Chain,
	programID string,
) (string, error) {
	val, err := r.rdb.Get(ctx, storage.LastKeyV1(chain, programID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", storage.Unavailable(err)
	}
	return val, nil
}

// SetLastSignature advances the resume anchor.
func (r *Repo) SetLastSignature(
	ctx context.Context,
	chain domain.Chain,
	programID, signature string,
) error {
	if err := r.rdb.Set(ctx, storage.LastKeyV1(chain, programID), signature, 0).Err(); err != nil {
		return storage.Unavailable(err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Repo) Close() error {
	return r.rdb.Close()
}
