package gateway

// Status is the connection state machine's current state. Transitions happen
// only inside Connection; external code observes but never mutates it.
type Status int32

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusAwaitingHello
	StatusIdentifying
	StatusResuming
	StatusReady
	StatusDisconnected
	StatusReconnecting
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusAwaitingHello:
		return "awaiting-hello"
	case StatusIdentifying:
		return "identifying"
	case StatusResuming:
		return "resuming"
	case StatusReady:
		return "ready"
	case StatusDisconnected:
		return "disconnected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
