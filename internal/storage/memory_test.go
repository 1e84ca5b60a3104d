package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dgellow/mailrelay/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(id string, expiresAt time.Time) *session.Session {
	return &session.Session{
		ID:          id,
		AccessToken: "token-" + id,
		Name:        "Jane Doe",
		Email:       "jane@contoso.com",
		CreatedAt:   time.Now(),
		ExpiresAt:   expiresAt,
	}
}

func TestMemoryStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	require.NoError(t, store.Set(ctx, newSession("s1", time.Now().Add(time.Hour))))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "token-s1", got.AccessToken)
	assert.Equal(t, "Jane Doe", got.Name)

	// returned sessions are copies
	got.AccessToken = "mutated"
	again, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "token-s1", again.AccessToken)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	// deleting twice is fine
	require.NoError(t, store.Delete(ctx, "s1"))
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, newSession("old", now.Add(-time.Minute))))
	require.NoError(t, store.Set(ctx, newSession("fresh", now.Add(time.Hour))))
	require.NoError(t, store.Set(ctx, newSession("forever", time.Time{})))

	_, err := store.Get(ctx, "old")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	count, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 2, store.count())

	_, err = store.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			assert.NoError(t, store.Set(ctx, newSession(id, time.Now().Add(time.Hour))))
			_, err := store.Get(ctx, id)
			assert.NoError(t, err)
			if i%2 == 0 {
				assert.NoError(t, store.Delete(ctx, id))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, store.count())
}
