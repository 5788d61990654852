package unit_test

import (
	"testing"

	dsync "github.com/Bloby22/dsync"
)

// TestOperationCodes tests that the wire operation codes match the protocol.
func TestOperationCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		op   int
		want int
	}{
		{name: "dispatch", op: dsync.OpDispatch, want: 0},
		{name: "heartbeat", op: dsync.OpHeartbeat, want: 1},
		{name: "identify", op: dsync.OpIdentify, want: 2},
		{name: "presence update", op: dsync.OpPresenceUpdate, want: 3},
		{name: "voice state update", op: dsync.OpVoiceStateUpdate, want: 4},
		{name: "resume", op: dsync.OpResume, want: 6},
		{name: "reconnect", op: dsync.OpReconnect, want: 7},
		{name: "request guild members", op: dsync.OpRequestGuildMembers, want: 8},
		{name: "invalid session", op: dsync.OpInvalidSession, want: 9},
		{name: "hello", op: dsync.OpHello, want: 10},
		{name: "heartbeat ack", op: dsync.OpHeartbeatAck, want: 11},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.op != tt.want {
				t.Errorf("op = %d, want %d", tt.op, tt.want)
			}
		})
	}
}

// TestCloseCodes tests that the close code constants match the protocol.
func TestCloseCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code int
		want int
	}{
		{name: "unknown error", code: dsync.CloseUnknownError, want: 4000},
		{name: "authentication failed", code: dsync.CloseAuthenticationFailed, want: 4004},
		{name: "invalid sequence", code: dsync.CloseInvalidSequence, want: 4007},
		{name: "rate limited", code: dsync.CloseRateLimited, want: 4008},
		{name: "session timed out", code: dsync.CloseSessionTimedOut, want: 4009},
		{name: "invalid shard", code: dsync.CloseInvalidShard, want: 4010},
		{name: "sharding required", code: dsync.CloseShardingRequired, want: 4011},
		{name: "invalid intents", code: dsync.CloseInvalidIntents, want: 4013},
		{name: "disallowed intents", code: dsync.CloseDisallowedIntents, want: 4014},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.code != tt.want {
				t.Errorf("code = %d, want %d", tt.code, tt.want)
			}
		})
	}
}

// TestStatusStrings tests the human-readable state names used in logs.
func TestStatusStrings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status dsync.Status
		want   string
	}{
		{status: dsync.StatusIdle, want: "idle"},
		{status: dsync.StatusConnecting, want: "connecting"},
		{status: dsync.StatusAwaitingHello, want: "awaiting-hello"},
		{status: dsync.StatusIdentifying, want: "identifying"},
		{status: dsync.StatusResuming, want: "resuming"},
		{status: dsync.StatusReady, want: "ready"},
		{status: dsync.StatusDisconnected, want: "disconnected"},
		{status: dsync.StatusReconnecting, want: "reconnecting"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

// TestClosePolicyStrings tests the policy names accepted in config overrides.
func TestClosePolicyStrings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		policy dsync.ClosePolicy
		want   string
	}{
		{policy: dsync.PolicyResume, want: "resume"},
		{policy: dsync.PolicyFresh, want: "fresh"},
		{policy: dsync.PolicyFatal, want: "fatal"},
	}

	for _, tt := range tests {
		if got := tt.policy.String(); got != tt.want {
			t.Errorf("ClosePolicy(%d).String() = %q, want %q", tt.policy, got, tt.want)
		}
	}
}

// TestIntentFlags tests that intents compose as disjoint bit flags.
func TestIntentFlags(t *testing.T) {
	t.Parallel()

	flags := []int{
		dsync.IntentGuilds,
		dsync.IntentGuildMembers,
		dsync.IntentGuildMessages,
		dsync.IntentDirectMessages,
		dsync.IntentMessageContent,
	}

	seen := 0
	for _, f := range flags {
		if f&seen != 0 {
			t.Errorf("intent flag %d overlaps another flag", f)
		}
		seen |= f
	}

	want := dsync.IntentGuilds | dsync.IntentGuildMessages | dsync.IntentDirectMessages
	if dsync.IntentsDefault != want {
		t.Errorf("IntentsDefault = %d, want %d", dsync.IntentsDefault, want)
	}
}
