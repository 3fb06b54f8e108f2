package visits

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter counts site visits per academy-local day.
type Counter interface {
	Increment(ctx context.Context, day string) (int64, error)
	Get(ctx context.Context, day string) (int64, error)
}

// DayKey formats t as the day bucket in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// Redis keeps one INCR counter per day with a retention window.
type Redis struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedis builds a counter keyed <prefix><day>.
func NewRedis(client *redis.Client, prefix string, retention time.Duration) *Redis {
	if prefix == "" {
		prefix = "academy:visits:"
	}
	if retention <= 0 {
		retention = 400 * 24 * time.Hour
	}
	return &Redis{client: client, prefix: prefix, retention: retention}
}

func (r *Redis) Increment(ctx context.Context, day string) (int64, error) {
	key := r.prefix + day
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *Redis) Get(ctx context.Context, day string) (int64, error) {
	n, err := r.client.Get(ctx, r.prefix+day).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// Memory is an in-process counter.
type Memory struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemory creates an empty counter.
func NewMemory() *Memory {
	return &Memory{counts: make(map[string]int64)}
}

func (m *Memory) Increment(_ context.Context, day string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[day]++
	return m.counts[day], nil
}

func (m *Memory) Get(_ context.Context, day string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[day], nil
}
