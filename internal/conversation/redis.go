package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/joseph-ayodele/medscan/internal/llm"
)

const redisKeyPrefix = "medscan:chat:"

// appendScript seeds the preamble into an empty list, pushes the new messages,
// trims to the cap and refreshes the TTL in one atomic step.
//
// KEYS[1] list key; ARGV[1] encoded preamble or ""; ARGV[2] ttl seconds (0 = none);
// ARGV[3] max non-preamble messages (0 = unbounded); ARGV[4..] encoded messages.
var appendScript = redis.NewScript(1, `
local key = KEYS[1]
local hasPreamble = ARGV[1] ~= ""
if redis.call("LLEN", key) == 0 and hasPreamble then
  redis.call("RPUSH", key, ARGV[1])
end
for i = 4, #ARGV do
  redis.call("RPUSH", key, ARGV[i])
end
local cap = tonumber(ARGV[3])
if cap > 0 then
  local head = 0
  if hasPreamble then head = 1 end
  local excess = redis.call("LLEN", key) - head - cap
  if excess > 0 then
    if head == 1 then
      local first = redis.call("LINDEX", key, 0)
      redis.call("LTRIM", key, head + excess, -1)
      redis.call("LPUSH", key, first)
    else
      redis.call("LTRIM", key, excess, -1)
    end
  end
end
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call("EXPIRE", key, ttl)
end
return redis.call("LRANGE", key, 0, -1)
`)

// resetScript truncates an existing list to its first element (the preamble),
// or deletes it when there is no preamble. Missing keys stay missing.
var resetScript = redis.NewScript(1, `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if ARGV[1] == "" then
  redis.call("DEL", KEYS[1])
else
  redis.call("LTRIM", KEYS[1], 0, 0)
end
return 1
`)

// RedisStore keeps transcripts in Redis lists so they survive restarts and are
// shared between server replicas.
type RedisStore struct {
	pool        *redis.Pool
	preamble    string
	encodedPre  string
	ttl         time.Duration
	maxMessages int
	logger      *slog.Logger
}

// NewRedisPool builds a connection pool for a redis:// URL.
func NewRedisPool(url string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     8,
		IdleTimeout: 4 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialURLContext(ctx, url)
		},
		TestOnBorrow: func(c redis.Conn, lastUsed time.Time) error {
			if time.Since(lastUsed) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

func NewRedisStore(pool *redis.Pool, preamble string, ttl time.Duration, maxMessages int, logger *slog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &RedisStore{
		pool:        pool,
		preamble:    preamble,
		ttl:         ttl,
		maxMessages: maxMessages,
		logger:      logger,
	}
	if preamble != "" {
		b, err := json.Marshal(llm.Message{Role: llm.RoleSystem, Content: preamble})
		if err != nil {
			return nil, err
		}
		s.encodedPre = string(b)
	}
	return s, nil
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = redis.DoContext(conn, ctx, "PING")
	return err
}

func (s *RedisStore) GetOrInit(ctx context.Context, key string) ([]llm.Message, error) {
	return s.push(ctx, key, nil)
}

func (s *RedisStore) Append(ctx context.Context, key string, msgs ...llm.Message) error {
	_, err := s.push(ctx, key, msgs)
	return err
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis conn: %w", err)
	}
	defer conn.Close()
	if _, err := resetScript.DoContext(ctx, conn, redisKeyPrefix+key, s.encodedPre); err != nil {
		s.logger.Error("conversation.redis.reset_failed", "user", key, "error", err)
		return fmt.Errorf("reset transcript: %w", err)
	}
	return nil
}

func (s *RedisStore) push(ctx context.Context, key string, msgs []llm.Message) ([]llm.Message, error) {
	args := []any{redisKeyPrefix + key, s.encodedPre, int64(s.ttl / time.Second), s.maxMessages}
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		args = append(args, string(b))
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis conn: %w", err)
	}
	defer conn.Close()

	raw, err := redis.Strings(appendScript.DoContext(ctx, conn, args...))
	if err != nil {
		s.logger.Error("conversation.redis.append_failed", "user", key, "error", err)
		return nil, fmt.Errorf("append transcript: %w", err)
	}
	out := make([]llm.Message, 0, len(raw))
	for _, r := range raw {
		var m llm.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("decode transcript: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}
