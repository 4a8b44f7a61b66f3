package state

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// casScript atomically compares the string at KEYS[1] to ARGV[1] and,
// if equal (or the key is absent and ARGV[1] is empty), replaces it
// with ARGV[2], applying a TTL in milliseconds from ARGV[3] (0 means
// no expiry). Returns 1 on success, 0 on mismatch.
const casScript = `
local current = redis.call("GET", KEYS[1])
if current == false then current = "" end
if current ~= ARGV[1] then
  return 0
end
if ARGV[3] == "0" then
  redis.call("SET", KEYS[1], ARGV[2])
else
  redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
end
return 1
`

// RedisStore implements Store over a go-redis/v9 client.
type RedisStore struct {
	client *redis.Client
	cas    *redis.Script
}

// NewRedisStore dials url (a redis:// connection string) and returns a
// ready Store.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("state: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return &RedisStore{client: client, cas: redis.NewScript(casScript)}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("state: get %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("state: set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("state: delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return fmt.Errorf("state: setnx %s: %w", key, err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

func (s *RedisStore) CompareAndSet(ctx context.Context, key string, oldValue, newValue []byte, ttl time.Duration) error {
	ttlMillis := int64(0)
	if ttl > 0 {
		ttlMillis = ttl.Milliseconds()
	}
	res, err := s.cas.Run(ctx, s.client, []string{key}, string(oldValue), string(newValue), fmt.Sprintf("%d", ttlMillis)).Int()
	if err != nil {
		return fmt.Errorf("state: cas %s: %w", key, err)
	}
	if res == 0 {
		return ErrCASMismatch
	}
	return nil
}

func (s *RedisStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	val, err := s.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("state: incr %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("state: scan %s*: %w", prefix, err)
	}
	return keys, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("state: ping: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryUsage reports Redis's own used_memory figure (bytes), parsed
// from the "memory" section of INFO.
func (s *RedisStore) MemoryUsage(ctx context.Context) (uint64, error) {
	info, err := s.client.Info(ctx, "memory").Result()
	if err != nil {
		return 0, fmt.Errorf("state: info memory: %w", err)
	}
	for _, line := range strings.Split(info, "\r\n") {
		v, ok := strings.CutPrefix(line, "used_memory:")
		if !ok {
			continue
		}
		used, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("state: parse used_memory: %w", err)
		}
		return used, nil
	}
	return 0, fmt.Errorf("state: used_memory not present in INFO output")
}
