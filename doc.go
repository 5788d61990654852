// Package dsync is a client for a real-time push API layered over a
// request/response API, with a shared rate-limiting gate protecting both.
//
// The library maintains one persistent gateway socket per connection
// (handshake, identify or resume authentication, heartbeating, close-code
// driven reconnection) and routes every REST call through a process-wide
// admission gate that enforces the global request quota plus per-endpoint
// bucket quotas learned dynamically from server response metadata.
//
// # Architecture
//
// Three subsystems cooperate behind the Client facade:
//
//   - The rate limiter holds a fixed global window and one bucket per
//     server-assigned rate-limit group. Buckets are discovered lazily from
//     response headers; multiple routes may alias to one bucket, and the
//     server's bucket id is authoritative over the route string once known.
//   - The gateway connection is a state machine (Idle → Connecting →
//     AwaitingHello → Identifying/Resuming → Ready) driving a single socket,
//     its heartbeat monitor, and recovery: resumable closes reconnect with
//     exponential backoff and replay the session, fatal closes terminate and
//     surface upward.
//   - The dispatcher fans decoded gateway events out to registered handlers
//     asynchronously; a plain key-value cache is kept warm from those events.
//
// # Quick Start
//
//	cfg := dsync.DefaultConfig(os.Getenv("DSYNC_TOKEN"))
//	cfg.Intents = dsync.IntentsDefault | dsync.IntentMessageContent
//
//	client, err := dsync.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client.On("MESSAGE_CREATE", func(event string, data json.RawMessage) {
//	    // react to the message, e.g. client.CreateMessage(...)
//	})
//
//	ctx := context.Background()
//	if err := client.Open(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close(ctx)
//
//	// Block until the connection fails permanently.
//	log.Fatal(<-client.Fatal())
//
// # Rate Limiting
//
// Every REST call blocks until both the global quota and the route's bucket
// admit it; the block honors the request context. A 429 response is
// authoritative: the affected quota is forced empty for exactly the
// server-mandated retry-after, and blocking callers retry transparently up
// to Config.RequestRetryBudget. With Config.NonBlockingRequests set, an
// exhausted quota surfaces as *RateLimitError naming the scope and the
// concrete wait instead.
//
// # Reconnection
//
// Socket closes are classified through a configurable close-code table:
// resumable codes reconnect and resume the session with the preserved
// session id and sequence, fresh codes re-identify from scratch, fatal codes
// (such as an authentication failure) terminate the client and are delivered
// on Fatal(). Unlisted codes are treated as resumable. Reconnects back off
// exponentially (min(2^n, 60) seconds) up to Config.MaxReconnectAttempts.
// A connection that stops receiving heartbeat acknowledgments is force-closed
// and recovered the same way.
//
// # Important
//
//   - Handlers run in their own goroutines; no ordering is guaranteed
//     between handlers, only between events as received.
//   - Rate-limit state is shared process-wide and deliberately survives
//     Close, so a later Open resumes against accurate quota windows.
//   - Gateway session state is owned by the connection; read it through
//     Session, never cache it externally.
package dsync
