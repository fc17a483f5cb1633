package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/live-commerce/internal/model"
)

func newCache(t *testing.T) (*miniredis.Miniredis, *ChatHistory) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewChatHistory(client, time.Minute)
}

func messages(n int) []*model.ChatMessage {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*model.ChatMessage, n)
	for i := range out {
		out[i] = &model.ChatMessage{
			ID:           fmt.Sprintf("m%02d", i),
			LiveStreamID: "live-42",
			UserID:       "u1",
			Message:      fmt.Sprintf("msg %d", i),
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
		}
	}
	return out
}

func TestChatHistory_MissThenHit(t *testing.T) {
	_, c := newCache(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, "live-42", 10)
	assert.False(t, ok)

	assert.True(t, c.Set(ctx, "live-42", messages(5), 0))
	got, ok := c.Get(ctx, "live-42", 3)
	require.True(t, ok)
	require.Len(t, got, 3)
	assert.Equal(t, "m02", got[0].ID)
	assert.Equal(t, "m04", got[2].ID)

	hits, misses := c.Counters()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestChatHistory_InvalidateAndTTL(t *testing.T) {
	mr, c := newCache(t)
	ctx := context.Background()

	require.True(t, c.Set(ctx, "live-42", messages(2), 0))
	c.Invalidate(ctx, "live-42")
	_, ok := c.Get(ctx, "live-42", 10)
	assert.False(t, ok)

	v, ok := c.Version(ctx, "live-42")
	require.True(t, ok)
	assert.Equal(t, int64(1), v)
	require.True(t, c.Set(ctx, "live-42", messages(2), v))
	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, "live-42", 10)
	assert.False(t, ok)
}

func TestChatHistory_EmptyNotCached(t *testing.T) {
	mr, c := newCache(t)
	assert.False(t, c.Set(context.Background(), "live-42", nil, 0))
	assert.False(t, mr.Exists("chat:history:live-42"))
}

func TestChatHistory_FillWithOutdatedVersionIsDropped(t *testing.T) {
	mr, c := newCache(t)
	ctx := context.Background()

	v, ok := c.Version(ctx, "live-42")
	require.True(t, ok)
	assert.Zero(t, v)

	// 读库之后、回填之前发生了删除
	c.Invalidate(ctx, "live-42")
	assert.False(t, c.Set(ctx, "live-42", messages(3), v))
	assert.False(t, mr.Exists("chat:history:live-42"))
	assert.Equal(t, int64(1), c.StaleFills())

	v, ok = c.Version(ctx, "live-42")
	require.True(t, ok)
	assert.True(t, c.Set(ctx, "live-42", messages(3), v))
	assert.True(t, mr.Exists("chat:history:live-42"))
}
