package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// heartbeatMonitor is the periodic liveness signal for one socket. It sends a
// heartbeat every interval and expects an acknowledgment before the next tick
// fires; a tick that finds the previous beat unacknowledged means the link is
// zombied and triggers the connection's recovery path. The monitor lives on
// the socket's context, so tearing the socket down stops it with no further
// ticks.
type heartbeatMonitor struct {
	interval time.Duration
	jitter   func() float64
	send     func(ctx context.Context) error
	onZombie func()
	log      *zap.Logger

	mu    sync.Mutex
	acked bool
}

func newHeartbeatMonitor(interval time.Duration, jitter func() float64, send func(ctx context.Context) error, onZombie func(), log *zap.Logger) *heartbeatMonitor {
	return &heartbeatMonitor{
		interval: interval,
		jitter:   jitter,
		send:     send,
		onZombie: onZombie,
		log:      log,
		acked:    true,
	}
}

// run drives the monitor until ctx is cancelled. The first beat fires after
// interval scaled by the jitter policy so a fleet of connections does not
// heartbeat in lockstep.
func (h *heartbeatMonitor) run(ctx context.Context) {
	first := time.Duration(float64(h.interval) * h.jitter())
	timer := time.NewTimer(first)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		h.mu.Lock()
		acked := h.acked
		h.acked = false
		h.mu.Unlock()

		if !acked {
			h.log.Warn("connection zombied", zap.Error(ErrZombied))
			h.onZombie()
			return
		}

		if err := h.send(ctx); err != nil {
			h.log.Warn("failed to send heartbeat", zap.Error(err))
			return
		}
		timer.Reset(h.interval)
	}
}

// ack records the server's acknowledgment of the last beat.
func (h *heartbeatMonitor) ack() {
	h.mu.Lock()
	h.acked = true
	h.mu.Unlock()
}
