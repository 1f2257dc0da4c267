package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ricesearch/covereval/internal/pkg/errors"
	"github.com/ricesearch/covereval/internal/ranking"
)

const (
	redisPrefix    = "covereval:"
	redisMetaField = "meta"
)

// RedisStorage stores runs in Redis. Each run is a hash holding its summary
// plus a second hash mapping query ids to encoded records; a set indexes
// the stored run ids.
type RedisStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration // 0 = no expiry
}

// NewRedisStorage creates a Redis-backed storage.
// Returns error if connection fails.
func NewRedisStorage(url string, ttl time.Duration) (*RedisStorage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStorage{
		client: client,
		prefix: redisPrefix,
		ttl:    ttl,
	}, nil
}

func (rs *RedisStorage) runKey(id string) string     { return rs.prefix + "run:" + id }
func (rs *RedisStorage) resultsKey(id string) string { return rs.prefix + "results:" + id }
func (rs *RedisStorage) indexKey() string            { return rs.prefix + "runs" }

// Save stores the run summary and its results atomically.
func (rs *RedisStorage) Save(ctx context.Context, run *Run) error {
	meta, err := json.Marshal(run.Summary())
	if err != nil {
		return fmt.Errorf("encoding run: %w", err)
	}

	fields := make(map[string]any, len(run.Results))
	for q, rec := range run.Results {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding record %s: %w", q, err)
		}
		fields[q] = string(data)
	}

	pipe := rs.client.TxPipeline()
	pipe.Del(ctx, rs.resultsKey(run.ID))
	pipe.HSet(ctx, rs.runKey(run.ID), redisMetaField, string(meta))
	if len(fields) > 0 {
		pipe.HSet(ctx, rs.resultsKey(run.ID), fields)
	}
	pipe.SAdd(ctx, rs.indexKey(), run.ID)
	if rs.ttl > 0 {
		pipe.Expire(ctx, rs.runKey(run.ID), rs.ttl)
		pipe.Expire(ctx, rs.resultsKey(run.ID), rs.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// Load loads a run and its results.
func (rs *RedisStorage) Load(ctx context.Context, id string) (*Run, error) {
	meta, err := rs.client.HGet(ctx, rs.runKey(id), redisMetaField).Result()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.NotFoundError(fmt.Sprintf("run %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("loading run: %w", err)
	}

	run, err := decodeRun([]byte(meta))
	if err != nil {
		return nil, err
	}

	fields, err := rs.client.HGetAll(ctx, rs.resultsKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading results: %w", err)
	}

	run.Results = make(map[string]*ranking.Record, len(fields))
	for q, data := range fields {
		var rec *ranking.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decoding record %s: %w", q, err)
		}
		run.Results[q] = rec
	}

	return run, nil
}

// List returns the summaries of all stored runs. Expired runs are dropped
// from the index.
func (rs *RedisStorage) List(ctx context.Context) ([]*Run, error) {
	ids, err := rs.client.SMembers(ctx, rs.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	if len(ids) == 0 {
		return []*Run{}, nil
	}

	pipe := rs.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, rs.runKey(id), redisMetaField)
	}
	// Missing hashes surface as redis.Nil on their own command.
	if _, err := pipe.Exec(ctx); err != nil && !stderrors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	runs := make([]*Run, 0, len(ids))
	var expired []any
	for i, cmd := range cmds {
		meta, err := cmd.Result()
		if stderrors.Is(err, redis.Nil) {
			expired = append(expired, ids[i])
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}
		run, err := decodeRun([]byte(meta))
		if err != nil {
			continue // Skip invalid entries
		}
		runs = append(runs, run)
	}

	if len(expired) > 0 {
		_ = rs.client.SRem(ctx, rs.indexKey(), expired...).Err()
	}

	return runs, nil
}

// Delete deletes a run.
func (rs *RedisStorage) Delete(ctx context.Context, id string) error {
	pipe := rs.client.TxPipeline()
	pipe.Del(ctx, rs.runKey(id), rs.resultsKey(id))
	pipe.SRem(ctx, rs.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
