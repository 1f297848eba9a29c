package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// observeScript adds an event to a key's sorted set, scored by its time in
// milliseconds, and counts the events inside the window.
// KEYS[1] = set key
// ARGV[1] = event time (ms)
// ARGV[2] = event id
// ARGV[3] = window start (ms, exclusive)
// ARGV[4] = retention floor (ms)
// ARGV[5] = key ttl (ms)
var observeScript = redis.NewScript(`
redis.call("ZADD", KEYS[1], "NX", ARGV[1], ARGV[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return redis.call("ZCOUNT", KEYS[1], "(" .. ARGV[3], ARGV[1])
`)

// RedisCounter shares counters across replicas.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(addr, password string, db int) *RedisCounter {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	return &RedisCounter{client: rdb, prefix: "trust:velocity:"}
}

func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCounter) Close() error {
	return c.client.Close()
}

func (c *RedisCounter) Observe(ctx context.Context, key, eventID string, at time.Time, window time.Duration) (int64, error) {
	atMs := at.UnixMilli()
	winMs := window.Milliseconds()

	n, err := observeScript.Run(ctx, c.client, []string{c.prefix + key},
		atMs, eventID, atMs-winMs, atMs-2*winMs, 2*winMs,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("velocity observe %s: %w", key, err)
	}
	return n, nil
}
