package dsync

import (
	"github.com/Bloby22/dsync/internal/gateway"
	"github.com/Bloby22/dsync/internal/ratelimit"
	"github.com/Bloby22/dsync/internal/rest"
)

// RateLimitError reports an exhausted request quota: which scope rejected
// the call (global or bucket) and the concrete wait before retrying.
type RateLimitError = ratelimit.RateLimitError

// Scope names a rate-limit scope.
type Scope = ratelimit.Scope

const (
	ScopeGlobal Scope = ratelimit.ScopeGlobal
	ScopeBucket Scope = ratelimit.ScopeBucket
)

// CloseError is a fatal gateway close; it is surfaced and never retried.
type CloseError = gateway.CloseError

// ConnectionError is a transport failure that exhausted the reconnect budget.
type ConnectionError = gateway.ConnectionError

// APIError is a non-2xx REST response that is not a rate limit.
type APIError = rest.APIError

var (
	// ErrZombied marks a connection that stopped acknowledging heartbeats.
	ErrZombied = gateway.ErrZombied

	// ErrMalformedFrame marks an undecodable inbound frame; such frames are
	// logged and dropped without affecting the connection.
	ErrMalformedFrame = gateway.ErrMalformedFrame

	// ErrNotConnected is returned when sending without an open socket.
	ErrNotConnected = gateway.ErrNotConnected

	// ErrAlreadyOpen is returned by Open on a running client.
	ErrAlreadyOpen = gateway.ErrAlreadyOpen
)
