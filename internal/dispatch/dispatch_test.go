package dispatch_test

import (
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Bloby22/dsync/internal/dispatch"
)

func TestOnReceivesMatchingEvents(t *testing.T) {
	t.Parallel()

	r := dispatch.New(nil)
	got := make(chan json.RawMessage, 2)
	r.On("MESSAGE_CREATE", func(eventType string, data json.RawMessage) {
		require.Equal(t, "MESSAGE_CREATE", eventType)
		got <- data
	})

	r.Emit("MESSAGE_CREATE", json.RawMessage(`{"id":"1"}`))
	r.Emit("MESSAGE_DELETE", json.RawMessage(`{"id":"2"}`))

	select {
	case data := <-got:
		require.JSONEq(t, `{"id":"1"}`, string(data))
	case <-time.After(time.Second):
		t.Fatal("handler did not fire")
	}

	// The MESSAGE_DELETE emit must not reach this handler.
	select {
	case data := <-got:
		t.Fatalf("handler received unrelated event: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOnceFiresExactlyOnce(t *testing.T) {
	t.Parallel()

	r := dispatch.New(nil)
	var fired atomic.Int32
	r.Once("READY", func(eventType string, data json.RawMessage) {
		fired.Add(1)
	})

	r.Emit("READY", nil)
	r.Emit("READY", nil)

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, fired.Load())
	require.Zero(t, r.HandlerCount("READY"))
}

func TestOnAnyReceivesEverything(t *testing.T) {
	t.Parallel()

	r := dispatch.New(nil)
	events := make(chan string, 4)
	r.OnAny(func(eventType string, data json.RawMessage) {
		events <- eventType
	})

	r.Emit("READY", nil)
	r.Emit("MESSAGE_CREATE", nil)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case eventType := <-events:
			seen[eventType] = true
		case <-time.After(time.Second):
			t.Fatal("catch-all handler missed an event")
		}
	}
	require.True(t, seen["READY"])
	require.True(t, seen["MESSAGE_CREATE"])
}

func TestMultipleHandlersAllFire(t *testing.T) {
	t.Parallel()

	r := dispatch.New(nil)
	var fired atomic.Int32
	for i := 0; i < 3; i++ {
		r.On("GUILD_CREATE", func(eventType string, data json.RawMessage) {
			fired.Add(1)
		})
	}
	require.Equal(t, 3, r.HandlerCount("GUILD_CREATE"))

	r.Emit("GUILD_CREATE", nil)
	require.Eventually(t, func() bool { return fired.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestSlowHandlerDoesNotBlockEmit(t *testing.T) {
	t.Parallel()

	r := dispatch.New(nil)
	release := make(chan struct{})
	r.On("MESSAGE_CREATE", func(eventType string, data json.RawMessage) {
		<-release
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.Emit("MESSAGE_CREATE", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a slow handler")
	}
	close(release)
}
