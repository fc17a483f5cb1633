package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/live-commerce/internal/apperr"
	"github.com/d60-Lab/live-commerce/internal/model"
	"github.com/d60-Lab/live-commerce/internal/testutil"
)

func chatRepos(t *testing.T) map[string]ChatRepository {
	db := testutil.NewDB(t)
	sharded, err := NewShardedChatRepository(db, 4)
	require.NoError(t, err)
	require.NoError(t, sharded.InitSchema())
	return map[string]ChatRepository{
		"single":  NewChatRepository(db),
		"sharded": sharded,
	}
}

func TestChatRepository_SaveListSoftDelete(t *testing.T) {
	for name, repo := range chatRepos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().Add(-time.Minute)
			for i := 0; i < 5; i++ {
				require.NoError(t, repo.Save(ctx, &model.ChatMessage{
					ID:           fmt.Sprintf("%s-%02d", name, i),
					LiveStreamID: "live-42",
					UserID:       "u1",
					Message:      fmt.Sprintf("hello %d", i),
					CreatedAt:    base.Add(time.Duration(i) * time.Second),
				}))
			}
			require.NoError(t, repo.Save(ctx, &model.ChatMessage{ID: name + "-other", LiveStreamID: "live-7", UserID: "u2", Message: "x", CreatedAt: base}))

			recent, err := repo.ListRecent(ctx, "live-42", 3)
			require.NoError(t, err)
			require.Len(t, recent, 3)
			assert.Equal(t, "hello 2", recent[0].Message)
			assert.Equal(t, "hello 4", recent[2].Message)

			target := name + "-03"
			require.NoError(t, repo.SoftDelete(ctx, "live-42", target, "admin", time.Now()))

			got, err := repo.GetByID(ctx, "live-42", target)
			require.NoError(t, err)
			assert.True(t, got.IsDeleted)
			assert.Equal(t, "hello 3", got.Message)
			assert.Equal(t, "admin", got.DeletedBy)

			n, err := repo.Count(ctx, "live-42")
			require.NoError(t, err)
			assert.Equal(t, int64(5), n)

			err = repo.SoftDelete(ctx, "live-7", target, "admin", time.Now())
			assert.ErrorIs(t, err, apperr.ErrNotFound)
		})
	}
}

func TestChatRepository_RepeatedSoftDeleteKeepsFirstAudit(t *testing.T) {
	for name, repo := range chatRepos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := name + "-audit"
			require.NoError(t, repo.Save(ctx, &model.ChatMessage{ID: id, LiveStreamID: "live-42", UserID: "u1", Message: "spam", CreatedAt: time.Now()}))

			first := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
			require.NoError(t, repo.SoftDelete(ctx, "live-42", id, "mod-1", first))
			require.NoError(t, repo.SoftDelete(ctx, "live-42", id, "admin-9", first.Add(time.Hour)))

			got, err := repo.GetByID(ctx, "live-42", id)
			require.NoError(t, err)
			assert.True(t, got.IsDeleted)
			assert.Equal(t, "mod-1", got.DeletedBy)
			require.NotNil(t, got.DeletedAt)
			assert.True(t, got.DeletedAt.Equal(first))

			assert.ErrorIs(t, repo.SoftDelete(ctx, "live-42", "missing", "mod-1", first), apperr.ErrNotFound)
		})
	}
}

func TestRouteByLiveStreamIsStable(t *testing.T) {
	a := RouteByLiveStream("live-42", 8)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a, RouteByLiveStream("live-42", 8))
	}
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, 8)

	_, err := NewShardedChatRepository(nil, 1)
	assert.Error(t, err)
}

func BenchmarkChatSave(b *testing.B) {
	db := testutil.NewDB(b)
	repo := NewChatRepository(db)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = repo.Save(ctx, &model.ChatMessage{
			ID:           fmt.Sprintf("m%09d", i),
			LiveStreamID: fmt.Sprintf("live-%d", i%16),
			UserID:       "u",
			Message:      "hi",
			CreatedAt:    time.Now(),
		})
	}
}
