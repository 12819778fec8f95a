package cache

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-publisher/domain/model"
)

func TestMemoryLinkStateStore_TakeOnce(t *testing.T) {
	store := NewMemoryLinkStateStore()
	ctx := context.Background()
	attempt := &model.LinkAttempt{State: "abc", OwnerID: "o1", Network: model.NetworkFacebook, ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, store.Put(ctx, attempt))

	got, err := store.Take(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "o1", got.OwnerID)

	_, err = store.Take(ctx, "abc")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemoryLinkStateStore_Expired(t *testing.T) {
	store := NewMemoryLinkStateStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, &model.LinkAttempt{State: "old", ExpiresAt: now.Add(time.Second)}))

	store.now = func() time.Time { return now.Add(time.Minute) }
	_, err := store.Take(ctx, "old")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemoryLinkStateStore_ConcurrentTake(t *testing.T) {
	store := NewMemoryLinkStateStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, &model.LinkAttempt{State: "s", ExpiresAt: time.Now().Add(time.Minute)}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Take(ctx, "s"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

// Runs against a real Redis when REDIS_ADDR is set.
func TestRedisLinkStateStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client, err := NewCache(context.Background(), addr, "", os.Getenv("REDIS_PASSWORD"))
	require.NoError(t, err)
	defer client.Close()

	store := NewRedisLinkStateStore(client)
	ctx := context.Background()
	attempt := &model.LinkAttempt{State: "redis-state", OwnerID: "o1", Network: model.NetworkTwitter, Verifier: "v", ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, store.Put(ctx, attempt))

	got, err := store.Take(ctx, "redis-state")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Verifier)

	_, err = store.Take(ctx, "redis-state")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
