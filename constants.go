package dsync

import "github.com/Bloby22/dsync/internal/gateway"

// Gateway operation codes carried in every inbound and outbound frame.
const (
	OpDispatch            = gateway.OpDispatch
	OpHeartbeat           = gateway.OpHeartbeat
	OpIdentify            = gateway.OpIdentify
	OpPresenceUpdate      = gateway.OpPresenceUpdate
	OpVoiceStateUpdate    = gateway.OpVoiceStateUpdate
	OpResume              = gateway.OpResume
	OpReconnect           = gateway.OpReconnect
	OpRequestGuildMembers = gateway.OpRequestGuildMembers
	OpInvalidSession      = gateway.OpInvalidSession
	OpHello               = gateway.OpHello
	OpHeartbeatAck        = gateway.OpHeartbeatAck
)

// Close codes sent by the gateway when it tears a connection down.
const (
	CloseUnknownError         = gateway.CloseUnknownError
	CloseUnknownOpcode        = gateway.CloseUnknownOpcode
	CloseDecodeError          = gateway.CloseDecodeError
	CloseNotAuthenticated     = gateway.CloseNotAuthenticated
	CloseAuthenticationFailed = gateway.CloseAuthenticationFailed
	CloseAlreadyAuthenticated = gateway.CloseAlreadyAuthenticated
	CloseInvalidSequence      = gateway.CloseInvalidSequence
	CloseRateLimited          = gateway.CloseRateLimited
	CloseSessionTimedOut      = gateway.CloseSessionTimedOut
	CloseInvalidShard         = gateway.CloseInvalidShard
	CloseShardingRequired     = gateway.CloseShardingRequired
	CloseInvalidAPIVersion    = gateway.CloseInvalidAPIVersion
	CloseInvalidIntents       = gateway.CloseInvalidIntents
	CloseDisallowedIntents    = gateway.CloseDisallowedIntents
)

// ClosePolicy decides how the connection reacts to a close code.
type ClosePolicy = gateway.ClosePolicy

const (
	PolicyResume ClosePolicy = gateway.PolicyResume
	PolicyFresh  ClosePolicy = gateway.PolicyFresh
	PolicyFatal  ClosePolicy = gateway.PolicyFatal
)

// Status is the gateway connection's state machine state.
type Status = gateway.Status

const (
	StatusIdle          Status = gateway.StatusIdle
	StatusConnecting    Status = gateway.StatusConnecting
	StatusAwaitingHello Status = gateway.StatusAwaitingHello
	StatusIdentifying   Status = gateway.StatusIdentifying
	StatusResuming      Status = gateway.StatusResuming
	StatusReady         Status = gateway.StatusReady
	StatusDisconnected  Status = gateway.StatusDisconnected
	StatusReconnecting  Status = gateway.StatusReconnecting
)

// Intents are the capability flags declared when identifying. Combine with
// bitwise OR.
const (
	IntentGuilds                 = 1 << 0
	IntentGuildMembers           = 1 << 1
	IntentGuildModeration        = 1 << 2
	IntentGuildExpressions       = 1 << 3
	IntentGuildIntegrations      = 1 << 4
	IntentGuildWebhooks          = 1 << 5
	IntentGuildInvites           = 1 << 6
	IntentGuildVoiceStates       = 1 << 7
	IntentGuildPresences         = 1 << 8
	IntentGuildMessages          = 1 << 9
	IntentGuildMessageReactions  = 1 << 10
	IntentGuildMessageTyping     = 1 << 11
	IntentDirectMessages         = 1 << 12
	IntentDirectMessageReactions = 1 << 13
	IntentDirectMessageTyping    = 1 << 14
	IntentMessageContent         = 1 << 15
)

// IntentsDefault covers guilds and message traffic, enough for most bots.
const IntentsDefault = IntentGuilds | IntentGuildMessages | IntentDirectMessages
