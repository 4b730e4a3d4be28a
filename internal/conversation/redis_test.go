package conversation_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/medscan/internal/conversation"
	"github.com/joseph-ayodele/medscan/internal/llm"
)

// newRedisStore targets REDIS_URL when set and an in-process miniredis
// otherwise. The returned server is nil for a real Redis.
func newRedisStore(t *testing.T, maxMessages int) (*conversation.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	var mr *miniredis.Miniredis
	url := os.Getenv("REDIS_URL")
	if url == "" {
		mr = miniredis.RunT(t)
		url = "redis://" + mr.Addr()
	}
	pool := conversation.NewRedisPool(url)
	t.Cleanup(func() { _ = pool.Close() })
	s, err := conversation.NewRedisStore(pool, preamble, time.Minute, maxMessages, nil)
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	return s, mr
}

func TestRedisStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, 0)
	key := uuid.NewString() + "@example.com"
	t.Cleanup(func() { _ = s.Reset(ctx, key) })

	msgs, err := s.GetOrInit(ctx, key)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)

	require.NoError(t, s.Append(ctx, key, user("q"), assistant("a")))
	msgs, err = s.GetOrInit(ctx, key)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "a", msgs[2].Content)

	require.NoError(t, s.Reset(ctx, key))
	msgs, err = s.GetOrInit(ctx, key)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, systemCount(msgs))
}

func TestRedisStore_MaxMessages(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, 2)
	key := uuid.NewString() + "@example.com"

	require.NoError(t, s.Append(ctx, key, user("q1"), assistant("a1")))
	require.NoError(t, s.Append(ctx, key, user("q2"), assistant("a2")))
	msgs, err := s.GetOrInit(ctx, key)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, preamble, msgs[0].Content)
	assert.Equal(t, "q2", msgs[1].Content)
}

func TestRedisStore_ResetUnknownKey(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, 0)
	if mr == nil {
		t.Skip("needs miniredis to inspect keys")
	}
	key := uuid.NewString() + "@example.com"

	require.NoError(t, s.Reset(ctx, key))
	assert.False(t, mr.Exists("medscan:chat:"+key))
}

func TestRedisStore_ExpiresIdleTranscripts(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, 0)
	if mr == nil {
		t.Skip("needs miniredis to fast-forward time")
	}
	key := uuid.NewString() + "@example.com"

	require.NoError(t, s.Append(ctx, key, user("q"), assistant("a")))
	assert.Equal(t, time.Minute, mr.TTL("medscan:chat:"+key))

	mr.FastForward(2 * time.Minute)
	msgs, err := s.GetOrInit(ctx, key)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, preamble, msgs[0].Content)
}
