package store

import (
	"os"
	"testing"
	"time"
)

func redisURL() string {
	if url := os.Getenv("COVER_REDIS_URL"); url != "" {
		return url
	}
	return "redis://localhost:6379/15"
}

func TestNewRedisStorage_InvalidURL(t *testing.T) {
	if _, err := NewRedisStorage("not-a-url", 0); err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestRedisStorage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis test in short mode")
	}

	s, err := NewRedisStorage(redisURL(), time.Hour)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer s.Close()

	s.prefix = "covereval-test:" + time.Now().Format("150405.000000") + ":"
	testStorage(t, s)
}
