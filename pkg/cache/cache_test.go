package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetGet(t *testing.T) {
	s := New(time.Minute, time.Minute)
	s.Set("key1", "value1")

	v, ok := s.Get("key1")
	require.True(t, ok)
	assert.Equal(t, "value1", v)
}

func TestStore_GetMissing(t *testing.T) {
	s := New(time.Minute, time.Minute)
	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestStore_SetWithTTLExpires(t *testing.T) {
	s := New(time.Minute, time.Millisecond)
	s.SetWithTTL("key1", "value1", 1*time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	_, ok := s.Get("key1")
	assert.False(t, ok)
}

func TestStore_Delete(t *testing.T) {
	s := New(time.Minute, time.Minute)
	s.Set("key1", "value1")
	s.Delete("key1")

	_, ok := s.Get("key1")
	assert.False(t, ok)
}

func TestStore_ItemCount(t *testing.T) {
	s := New(time.Minute, time.Minute)
	s.Set("a", 1)
	s.Set("b", 2)
	assert.Equal(t, 2, s.ItemCount())
}
