package gateway

// ClosePolicy decides how the state machine reacts to a socket close code.
type ClosePolicy int

const (
	// PolicyResume reconnects and attempts to resume the prior session.
	PolicyResume ClosePolicy = iota
	// PolicyFresh reconnects after discarding session state, forcing a new
	// identify handshake.
	PolicyFresh
	// PolicyFatal terminates the connection permanently; the error is
	// surfaced to the owning client and never retried.
	PolicyFatal
)

func (p ClosePolicy) String() string {
	switch p {
	case PolicyResume:
		return "resume"
	case PolicyFresh:
		return "fresh"
	case PolicyFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Close codes sent by the gateway.
const (
	CloseUnknownError         = 4000
	CloseUnknownOpcode        = 4001
	CloseDecodeError          = 4002
	CloseNotAuthenticated     = 4003
	CloseAuthenticationFailed = 4004
	CloseAlreadyAuthenticated = 4005
	CloseInvalidSequence      = 4007
	CloseRateLimited          = 4008
	CloseSessionTimedOut      = 4009
	CloseInvalidShard         = 4010
	CloseShardingRequired     = 4011
	CloseInvalidAPIVersion    = 4012
	CloseInvalidIntents       = 4013
	CloseDisallowedIntents    = 4014
)

// DefaultClosePolicies returns the default close-code table. The authoritative
// list belongs to the remote protocol, so callers may override or extend the
// table through Config; codes absent from the table are treated as resumable.
func DefaultClosePolicies() map[int]ClosePolicy {
	return map[int]ClosePolicy{
		CloseUnknownError:         PolicyResume,
		CloseUnknownOpcode:        PolicyResume,
		CloseDecodeError:          PolicyResume,
		CloseNotAuthenticated:     PolicyResume,
		CloseAuthenticationFailed: PolicyFatal,
		CloseAlreadyAuthenticated: PolicyResume,
		CloseInvalidSequence:      PolicyFresh,
		CloseRateLimited:          PolicyResume,
		CloseSessionTimedOut:      PolicyFresh,
		CloseInvalidShard:         PolicyFatal,
		CloseShardingRequired:     PolicyFatal,
		CloseInvalidAPIVersion:    PolicyFatal,
		CloseInvalidIntents:       PolicyFatal,
		CloseDisallowedIntents:    PolicyFatal,
	}
}
