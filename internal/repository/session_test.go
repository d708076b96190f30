package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vip-access-bot/internal/model"
	"vip-access-bot/internal/repository"
)

func TestMemorySessionRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	repo := repository.NewMemorySessionRepository(time.Hour, clock)

	got, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.Save(ctx, &model.PendingPurchase{BuyerID: 1, State: model.StateSelectingPlan, CategoryKey: "movie"}))

	got, err = repo.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StateSelectingPlan, got.State)
	assert.Equal(t, "movie", got.CategoryKey)

	now = now.Add(2 * time.Hour)
	got, err = repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got, "session older than the TTL is dropped")

	require.NoError(t, repo.Save(ctx, &model.PendingPurchase{BuyerID: 2, State: model.StateMainMenu}))
	require.NoError(t, repo.Delete(ctx, 2))
	got, err = repo.Get(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// Runs only when REDIS_TEST_URL points at a disposable redis database.
func TestRedisSessionRepository(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	repo := repository.NewRedisSessionRepository(rdb, time.Minute)
	require.NoError(t, repo.Save(ctx, &model.PendingPurchase{BuyerID: 99, State: model.StateAwaitingProof, CategoryKey: "movie", PlanID: "p1"}))

	got, err := repo.Get(ctx, 99)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Complete())

	require.NoError(t, repo.Delete(ctx, 99))
	got, err = repo.Get(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, got)
}
