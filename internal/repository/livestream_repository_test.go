package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/live-commerce/internal/model"
	"github.com/d60-Lab/live-commerce/internal/testutil"
)

func TestLiveStreamRepository(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewLiveStreamRepository(db)
	ctx := context.Background()
	now := time.Now()

	later := &model.LiveStream{PartnerID: "p1", Title: "later", ScheduledAt: now.Add(2 * time.Hour), ProductIDs: []string{"a", "b"}}
	soon := &model.LiveStream{PartnerID: "p1", Title: "soon", ScheduledAt: now.Add(time.Hour)}
	ended := &model.LiveStream{PartnerID: "p1", Title: "ended", ScheduledAt: now, Status: model.LiveStreamEnded}
	for _, ls := range []*model.LiveStream{later, soon, ended} {
		require.NoError(t, repo.Create(ctx, ls))
	}

	ok, err := repo.TransitionStatus(ctx, later.ID, model.LiveStreamScheduled, model.LiveStreamLive, map[string]any{"is_live": true})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.TransitionStatus(ctx, later.ID, model.LiveStreamScheduled, model.LiveStreamLive, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := repo.ListLive(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "later", list[0].Title)
	assert.Equal(t, []string{"a", "b"}, list[0].ProductIDs)
	assert.Equal(t, "soon", list[1].Title)

	require.NoError(t, repo.IncrementViewCount(ctx, soon.ID))
	require.NoError(t, repo.IncrementViewCount(ctx, soon.ID))
	got, err := repo.GetByID(ctx, soon.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ViewCount)
}
