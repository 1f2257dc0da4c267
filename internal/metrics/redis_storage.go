package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisHistory provides Redis-backed persistence for run history.
// Each series is a sorted set scored by run completion time.
type RedisHistory struct {
	client *redis.Client
	prefix string
	ttl    time.Duration // Time to live for data points
}

// NewRedisHistory creates a new Redis history backend.
// Returns error if connection fails.
func NewRedisHistory(url string, ttl time.Duration) (*RedisHistory, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 90 * 24 * time.Hour
	}

	return &RedisHistory{
		client: client,
		prefix: "covereval:history:",
		ttl:    ttl,
	}, nil
}

// Record saves a single data point to Redis.
// The member is the JSON point so repeated values from different runs stay distinct.
func (rh *RedisHistory) Record(ctx context.Context, series string, dp DataPoint) error {
	key := rh.prefix + series
	member, err := json.Marshal(dp)
	if err != nil {
		return fmt.Errorf("encoding data point: %w", err)
	}

	pipe := rh.client.Pipeline()

	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(dp.Timestamp.Unix()),
		Member: string(member),
	})

	// Remove old data points (older than TTL)
	minScore := time.Now().Add(-rh.ttl).Unix()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", minScore))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving data point: %w", err)
	}

	return nil
}

// Load loads the data points of series since the given time.
func (rh *RedisHistory) Load(ctx context.Context, series string, since time.Time) ([]DataPoint, error) {
	key := rh.prefix + series

	results, err := rh.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", since.Unix()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	dataPoints := make([]DataPoint, 0, len(results))
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		var dp DataPoint
		if err := json.Unmarshal([]byte(member), &dp); err != nil {
			// Skip invalid entries
			continue
		}
		dataPoints = append(dataPoints, dp)
	}

	return dataPoints, nil
}

// Series returns all series names stored in Redis.
func (rh *RedisHistory) Series(ctx context.Context) ([]string, error) {
	var names []string
	iter := rh.client.Scan(ctx, 0, rh.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), rh.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing series: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Delete deletes all data for a series.
func (rh *RedisHistory) Delete(ctx context.Context, series string) error {
	if err := rh.client.Del(ctx, rh.prefix+series).Err(); err != nil {
		return fmt.Errorf("deleting series: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (rh *RedisHistory) Close() error {
	return rh.client.Close()
}
