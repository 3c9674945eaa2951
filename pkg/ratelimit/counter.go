package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
)

// Counter atomically increments the hit count of a key's current window.
// It returns the post-increment count and the time the window ends.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

type memoryWindow struct {
	count int64
	end   time.Time
}

// MemoryCounter keeps windows in process memory
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
	cron    *cron.Cron
}

// NewMemoryCounter creates an empty in-memory counter
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

// WithClock overrides the time source
func (c *MemoryCounter) WithClock(now func() time.Time) *MemoryCounter {
	c.now = now
	return c
}

// Incr implements Counter
func (c *MemoryCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return 0, time.Time{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.end) {
		w = &memoryWindow{end: now.Add(window)}
		c.windows[key] = w
	}
	w.count++
	return w.count, w.end, nil
}

// Sweep drops windows that have ended and returns how many were dropped
func (c *MemoryCounter) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	dropped := 0
	for key, w := range c.windows {
		if !now.Before(w.end) {
			delete(c.windows, key)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of tracked windows
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

// StartSweeper runs Sweep on a cron schedule such as "@every 1m"
func (c *MemoryCounter) StartSweeper(schedule string) error {
	if c.cron != nil {
		return errors.New("ratelimit: sweeper already running")
	}
	sched := cron.New()
	if _, err := sched.AddFunc(schedule, func() { c.Sweep() }); err != nil {
		return fmt.Errorf("failed to schedule sweeper: %w", err)
	}
	sched.Start()
	c.cron = sched
	return nil
}

// Stop halts the sweeper and waits for a running sweep to finish
func (c *MemoryCounter) Stop(ctx context.Context) error {
	if c.cron == nil {
		return nil
	}
	select {
	case <-c.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// incrScript increments a key and starts its expiry on the first hit of a
// window. It returns the count and the remaining window in milliseconds.
var incrScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisCounter shares windows across instances through Redis
type RedisCounter struct {
	client redis.Scripter
	prefix string
	now    func() time.Time
}

// NewRedisCounter creates a Redis-backed counter. Keys are stored as
// prefix:key.
func NewRedisCounter(client redis.Scripter, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisCounter{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// Incr implements Counter
func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	redisKey := fmt.Sprintf("%s:%s", c.prefix, key)

	res, err := incrScript.Run(ctx, c.client, []string{redisKey}, window.Milliseconds()).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis error: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return 0, time.Time{}, fmt.Errorf("unexpected script result %v", res)
	}
	count, ok1 := values[0].(int64)
	ttl, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return 0, time.Time{}, fmt.Errorf("unexpected script result %v", res)
	}

	return count, c.now().Add(time.Duration(ttl) * time.Millisecond), nil
}
