package gateway

import (
	"errors"
	"fmt"
)

// ErrZombied marks a connection that stayed open but stopped acknowledging
// heartbeats; it is recovered internally through the reconnect path.
var ErrZombied = errors.New("heartbeat not acknowledged before next beat")

// ErrMalformedFrame marks an undecodable inbound frame. Such frames are
// logged and dropped; the connection continues.
var ErrMalformedFrame = errors.New("malformed gateway frame")

// ErrNotConnected is returned when a frame is sent while no socket is open.
var ErrNotConnected = errors.New("gateway connection is not open")

// ErrAlreadyOpen is returned by Open when the connection is already running.
var ErrAlreadyOpen = errors.New("gateway connection already open")

// CloseError is a fatal gateway close. It is never retried: the state machine
// terminates and the error is surfaced to the owning client.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("gateway closed with code %d", e.Code)
	}
	return fmt.Sprintf("gateway closed with code %d: %s", e.Code, e.Reason)
}

// ConnectionError wraps a transport failure that exhausted the reconnect
// budget and escalated to fatal.
type ConnectionError struct {
	Attempts int
	Cause    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("gateway connection failed after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}
