package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetIfAbsent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetIfAbsent(ctx, "k", []byte("a"), 0))
	require.ErrorIs(t, s.SetIfAbsent(ctx, "k", []byte("b"), 0), ErrAlreadyExists)

	val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "a", string(val))
}

func TestMemoryStoreCompareAndSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("false"), 0))
	require.NoError(t, s.CompareAndSet(ctx, "k", []byte("false"), []byte("true"), 0))
	require.ErrorIs(t, s.CompareAndSet(ctx, "k", []byte("false"), []byte("true"), 0), ErrCASMismatch)
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreIncrement(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	v, err := s.Increment(ctx, "counter", 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), v)

	v, err = s.Increment(ctx, "counter", 4)
	require.NoError(t, err)
	require.Equal(t, int64(5), v)
}

func TestMemoryStoreListByPrefix(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "tunnel:a", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "tunnel:b", []byte("2"), 0))
	require.NoError(t, s.Set(ctx, "token:c", []byte("3"), 0))

	keys, err := s.ListByPrefix(ctx, "tunnel:")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"tunnel:a", "tunnel:b"}, keys)
}
