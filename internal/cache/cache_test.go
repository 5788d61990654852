package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutGetDelete(t *testing.T) {
	t.Parallel()

	s := New()

	_, ok := s.Get("channel", "1")
	require.False(t, ok)

	s.Put("channel", "1", json.RawMessage(`{"id":"1","name":"general"}`))
	data, ok := s.Get("channel", "1")
	require.True(t, ok)
	require.JSONEq(t, `{"id":"1","name":"general"}`, string(data))

	// Same id under a different kind is a different entry.
	_, ok = s.Get("guild", "1")
	require.False(t, ok)

	s.Put("channel", "1", json.RawMessage(`{"id":"1","name":"renamed"}`))
	data, _ = s.Get("channel", "1")
	require.JSONEq(t, `{"id":"1","name":"renamed"}`, string(data))
	require.Equal(t, 1, s.Len())

	s.Delete("channel", "1")
	_, ok = s.Get("channel", "1")
	require.False(t, ok)
	require.Zero(t, s.Len())
}

func TestClear(t *testing.T) {
	t.Parallel()

	s := New()
	s.Put("channel", "1", nil)
	s.Put("guild", "2", nil)
	require.Equal(t, 2, s.Len())

	s.Clear()
	require.Zero(t, s.Len())
}

func TestSweep(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New()
	s.clock = func() time.Time { return now }

	s.Put("channel", "old", nil)

	now = now.Add(time.Hour)
	s.Put("channel", "fresh", nil)

	removed := s.Sweep(30 * time.Minute)
	require.Equal(t, 1, removed)
	require.Equal(t, 1, s.Len())

	_, ok := s.Get("channel", "fresh")
	require.True(t, ok)
	_, ok = s.Get("channel", "old")
	require.False(t, ok)
}
