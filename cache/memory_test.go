package cache

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemory(2)
	require.NoError(t, err)

	ok, err := m.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	value := []byte("one")
	require.NoError(t, m.Save(ctx, "a", value))
	value[0] = 'X'

	got, ok, err := m.Read(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "one", string(got), "saved values are copied")
	got[0] = 'Y'
	again, _, _ := m.Read(ctx, "a")
	assert.Equal(t, "one", string(again), "read values are copied")

	require.NoError(t, m.Save(ctx, "b", []byte("two")))
	require.NoError(t, m.Save(ctx, "c", []byte("three")))
	assert.Equal(t, 2, m.Len())
	_, ok, _ = m.Read(ctx, "a")
	assert.False(t, ok, "least recently used entry is evicted")

	m.Purge()
	assert.Equal(t, 0, m.Len())
}

func TestNewMemoryDefaultSize(t *testing.T) {
	m, err := NewMemory(0)
	require.NoError(t, err)
	for i := range DefaultMemorySize + 1 {
		require.NoError(t, m.Save(context.Background(), strconv.Itoa(i), nil))
	}
	assert.Equal(t, DefaultMemorySize, m.Len())
}

func TestKey(t *testing.T) {
	assert.Len(t, Key("bundle", "app", "users"), 64)
	assert.Equal(t, Key("a", "b"), Key("a", "b"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"), "parts are delimited")
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	var s Store = Nop{}
	require.NoError(t, s.Save(ctx, "k", []byte("v")))
	_, ok, err := s.Read(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
