package notice

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func TestStore_MarkThenDue(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.True(t, store.Due(ctx, "chat-hash", "user-hash"))

	_, err := store.Mark(ctx, "chat-hash", "user-hash")
	require.NoError(t, err)

	require.False(t, store.Due(ctx, "chat-hash", "user-hash"))
}

func TestStore_TTLExpiry(t *testing.T) {
	t.Parallel()
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.Mark(ctx, "chat-hash", "user-hash")
	require.NoError(t, err)
	require.False(t, store.Due(ctx, "chat-hash", "user-hash"))

	mr.FastForward(TTL + 1)
	require.True(t, store.Due(ctx, "chat-hash", "user-hash"))
}

func TestStore_RejectsEmptyKeyHalves(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Mark(ctx, "", "user-hash")
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = store.Mark(ctx, "chat-hash", "")
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestStore_Clear(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Mark(ctx, "chat-hash", "user-hash")
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx, "chat-hash", "user-hash"))
	require.True(t, store.Due(ctx, "chat-hash", "user-hash"))
}
