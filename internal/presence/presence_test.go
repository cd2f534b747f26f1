package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the store's notion of now.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(ttl time.Duration) (*MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(ttl)
	store.now = clock.Now
	return store, clock
}

func TestMemoryStoreOnlineOffline(t *testing.T) {
	store, _ := newTestStore(time.Minute)
	ctx := context.Background()

	online, err := store.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online, "missing entry reads as offline")

	require.NoError(t, store.SetOnline(ctx, 1))
	online, err = store.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.True(t, online)

	require.NoError(t, store.SetOffline(ctx, 1))
	online, err = store.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestMemoryStoreEntryExpires(t *testing.T) {
	store, clock := newTestStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, store.SetOnline(ctx, 2))

	clock.Advance(59 * time.Second)
	online, err := store.IsOnline(ctx, 2)
	require.NoError(t, err)
	assert.True(t, online)

	clock.Advance(2 * time.Second)
	online, err = store.IsOnline(ctx, 2)
	require.NoError(t, err)
	assert.False(t, online, "unrefreshed entry must expire after the TTL")

	_, ok, err := store.LastUpdate(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreRefreshRearmsTTL(t *testing.T) {
	store, clock := newTestStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, store.SetOnline(ctx, 3))

	clock.Advance(50 * time.Second)
	require.NoError(t, store.Refresh(ctx, 3))

	// Past the original deadline but inside the refreshed one.
	clock.Advance(30 * time.Second)
	online, err := store.IsOnline(ctx, 3)
	require.NoError(t, err)
	assert.True(t, online)
}

func TestMemoryStoreLastUpdateTracksWrites(t *testing.T) {
	store, clock := newTestStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, store.SetOnline(ctx, 4))
	first, ok, err := store.LastUpdate(ctx, 4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, clock.Now(), first)

	clock.Advance(10 * time.Second)
	require.NoError(t, store.Refresh(ctx, 4))
	second, ok, err := store.LastUpdate(ctx, 4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.Add(10*time.Second), second)
}

func TestMemoryStoreDefaultTTL(t *testing.T) {
	store := NewMemoryStore(0)
	assert.Equal(t, DefaultTTL, store.ttl)
}
