package gateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHeartbeatMonitorBeatsWhileAcked(t *testing.T) {
	t.Parallel()

	var beats atomic.Int64
	var hb *heartbeatMonitor
	hb = newHeartbeatMonitor(20*time.Millisecond, func() float64 { return 0 },
		func(ctx context.Context) error {
			beats.Add(1)
			hb.ack()
			return nil
		},
		func() { t.Error("acknowledged monitor must not declare a zombie") },
		zap.NewNop(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hb.run(ctx)

	require.Eventually(t, func() bool {
		return beats.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHeartbeatMonitorDetectsZombie(t *testing.T) {
	t.Parallel()

	zombie := make(chan struct{})
	hb := newHeartbeatMonitor(10*time.Millisecond, func() float64 { return 0 },
		func(ctx context.Context) error { return nil }, // beat is sent, never acked
		func() { close(zombie) },
		zap.NewNop(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hb.run(ctx)

	select {
	case <-zombie:
	case <-time.After(2 * time.Second):
		t.Fatal("unacked heartbeat did not trigger the zombie path")
	}
}

func TestHeartbeatMonitorStopsOnCancel(t *testing.T) {
	t.Parallel()

	var beats atomic.Int64
	hb := newHeartbeatMonitor(20*time.Millisecond, func() float64 { return 1 },
		func(ctx context.Context) error {
			beats.Add(1)
			return nil
		},
		func() {},
		zap.NewNop(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		hb.run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not return on a cancelled context")
	}
	require.Zero(t, beats.Load())
}

func TestHeartbeatMonitorJitterDelaysFirstBeat(t *testing.T) {
	t.Parallel()

	var beats atomic.Int64
	hb := newHeartbeatMonitor(100*time.Millisecond, func() float64 { return 1 },
		func(ctx context.Context) error {
			beats.Add(1)
			return nil
		},
		func() {},
		zap.NewNop(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hb.run(ctx)

	// With a jitter factor of 1 the first beat waits the full interval.
	time.Sleep(30 * time.Millisecond)
	require.Zero(t, beats.Load())

	require.Eventually(t, func() bool {
		return beats.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)
}
