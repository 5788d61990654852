package dsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Bloby22/dsync/internal/cache"
	"github.com/Bloby22/dsync/internal/dispatch"
	"github.com/Bloby22/dsync/internal/gateway"
	"github.com/Bloby22/dsync/internal/ratelimit"
	"github.com/Bloby22/dsync/internal/rest"
)

// EventHandler processes one decoded application event.
type EventHandler = dispatch.Handler

// RateLimitStats is a read-only snapshot of the shared limiter's quota state.
type RateLimitStats = ratelimit.Stats

// Client ties the pieces together: the shared rate limiter gating every REST
// call, the gateway connection feeding the event registry, and the entity
// cache kept warm from dispatched events. Rate-limit state is shared
// process-wide across all shards; gateway state is per connection.
type Client struct {
	cfg     *Config
	log     *zap.Logger
	limiter *ratelimit.Limiter
	rest    *rest.Executor
	events  *dispatch.Registry
	cache   *cache.Store
	fatal   chan error

	mu sync.Mutex
	gw *gateway.Connection
}

// New validates the config and assembles a Client. The gateway socket is not
// dialed until Open.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config: nil config")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	limiter := ratelimit.New(ratelimit.Config{
		GlobalLimit:        cfg.GlobalRequestLimit,
		GlobalWindow:       time.Duration(cfg.GlobalRequestWindow),
		DefaultBucketLimit: cfg.DefaultBucketLimit,
		Logger:             log,
	})

	executor := rest.New(rest.Config{
		Token:       cfg.Token,
		BaseURL:     cfg.APIBaseURL,
		RetryBudget: cfg.RequestRetryBudget,
		NonBlocking: cfg.NonBlockingRequests,
		HTTPClient:  cfg.HTTPClient,
		Limiter:     limiter,
		Logger:      log,
	})

	c := &Client{
		cfg:     cfg,
		log:     log,
		limiter: limiter,
		rest:    executor,
		events:  dispatch.New(log),
		cache:   cache.New(),
		fatal:   make(chan error, 1),
	}
	c.registerCacheHandlers()
	return c, nil
}

// Open connects to the gateway, discovering the streaming endpoint through
// the REST API when no URL was configured, and blocks until the session
// reaches Ready or ctx expires.
func (c *Client) Open(ctx context.Context) error {
	if gw := c.connection(); gw != nil && gw.Status() != StatusIdle && gw.Status() != StatusDisconnected {
		return ErrAlreadyOpen
	}

	url := c.cfg.GatewayURL
	if url == "" {
		gb, err := c.rest.GatewayBot(ctx)
		if err != nil {
			return fmt.Errorf("discovering gateway endpoint: %w", err)
		}
		url = gb.URL
	}

	gw := gateway.New(gateway.Config{
		URL:                  url,
		Token:                c.cfg.Token,
		Intents:              c.cfg.Intents,
		ShardIndex:           c.cfg.ShardIndex,
		ShardCount:           c.cfg.ShardCount,
		MaxReconnectAttempts: c.cfg.MaxReconnectAttempts,
		Jitter:               c.cfg.jitterFunc(),
		ClosePolicies:        c.cfg.closePolicies(),
		OnEvent:              c.handleEvent,
		OnFatal:              c.handleFatal,
		Logger:               c.log,
	})

	c.mu.Lock()
	// Re-check under the lock: another Open may have won the race while the
	// endpoint was being discovered.
	if c.gw != nil && c.gw.Status() != StatusIdle && c.gw.Status() != StatusDisconnected {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.gw = gw
	c.mu.Unlock()

	return gw.Open(ctx)
}

// connection returns the current gateway connection, which may be nil before
// the first Open.
func (c *Client) connection() *gateway.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gw
}

// Close stops the gateway connection: heartbeats cease, the socket closes,
// pending reconnects abort. Rate-limit state survives so a later Open resumes
// against accurate quota windows.
func (c *Client) Close(ctx context.Context) error {
	gw := c.connection()
	if gw == nil {
		return nil
	}
	return gw.Close(ctx)
}

// Status returns the gateway connection's current state.
func (c *Client) Status() Status {
	gw := c.connection()
	if gw == nil {
		return StatusIdle
	}
	return gw.Status()
}

// Session returns the gateway session id, last sequence and resume endpoint.
func (c *Client) Session() (sessionID string, sequence int64, resumeURL string) {
	gw := c.connection()
	if gw == nil {
		return "", 0, ""
	}
	return gw.Session()
}

// Fatal delivers the error that permanently terminated the gateway
// connection: a fatal close code or an exhausted reconnect budget.
func (c *Client) Fatal() <-chan error {
	return c.fatal
}

// On registers a handler for an event type.
func (c *Client) On(event string, h EventHandler) {
	c.events.On(event, h)
}

// Once registers a handler fired for the first matching event only.
func (c *Client) Once(event string, h EventHandler) {
	c.events.Once(event, h)
}

// OnAny registers a handler receiving every event.
func (c *Client) OnAny(h EventHandler) {
	c.events.OnAny(h)
}

// UpdatePresence sends a presence update over the gateway.
func (c *Client) UpdatePresence(ctx context.Context, data interface{}) error {
	gw := c.connection()
	if gw == nil {
		return ErrNotConnected
	}
	return gw.UpdatePresence(ctx, data)
}

// RequestGuildMembers asks the gateway to stream member chunks.
func (c *Client) RequestGuildMembers(ctx context.Context, data interface{}) error {
	gw := c.connection()
	if gw == nil {
		return ErrNotConnected
	}
	return gw.RequestGuildMembers(ctx, data)
}

// Me fetches the authenticated user.
func (c *Client) Me(ctx context.Context) (json.RawMessage, error) {
	return c.rest.Me(ctx)
}

// Channel fetches a channel, serving from the entity cache when warm.
func (c *Client) Channel(ctx context.Context, channelID string) (json.RawMessage, error) {
	if data, ok := c.cache.Get("channel", channelID); ok {
		return data, nil
	}
	data, err := c.rest.Channel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	c.cache.Put("channel", channelID, data)
	return data, nil
}

// Guild fetches a guild, serving from the entity cache when warm.
func (c *Client) Guild(ctx context.Context, guildID string) (json.RawMessage, error) {
	if data, ok := c.cache.Get("guild", guildID); ok {
		return data, nil
	}
	data, err := c.rest.Guild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	c.cache.Put("guild", guildID, data)
	return data, nil
}

// CreateMessage posts a message to a channel through the rate-limited
// executor.
func (c *Client) CreateMessage(ctx context.Context, channelID, content string) (json.RawMessage, error) {
	return c.rest.CreateMessage(ctx, channelID, content)
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return c.rest.DeleteMessage(ctx, channelID, messageID)
}

// RateLimitStats snapshots the shared limiter without mutating it.
func (c *Client) RateLimitStats() RateLimitStats {
	return c.limiter.Stats()
}

// SweepCaches drops rate-limit buckets and cached entities older than maxAge.
func (c *Client) SweepCaches(maxAge time.Duration) {
	c.limiter.Sweep(maxAge)
	c.cache.Sweep(maxAge)
}

func (c *Client) handleEvent(eventType string, sequence int64, data []byte) {
	c.events.Emit(eventType, data)
}

func (c *Client) handleFatal(err error) {
	select {
	case c.fatal <- err:
	default:
	}
}

// registerCacheHandlers keeps the entity cache warm from gateway events.
func (c *Client) registerCacheHandlers() {
	type identified struct {
		ID string `json:"id"`
	}
	put := func(kind string) EventHandler {
		return func(_ string, data json.RawMessage) {
			var e identified
			if json.Unmarshal(data, &e) == nil && e.ID != "" {
				c.cache.Put(kind, e.ID, data)
			}
		}
	}
	drop := func(kind string) EventHandler {
		return func(_ string, data json.RawMessage) {
			var e identified
			if json.Unmarshal(data, &e) == nil && e.ID != "" {
				c.cache.Delete(kind, e.ID)
			}
		}
	}

	c.events.On("CHANNEL_CREATE", put("channel"))
	c.events.On("CHANNEL_UPDATE", put("channel"))
	c.events.On("CHANNEL_DELETE", drop("channel"))
	c.events.On("GUILD_CREATE", put("guild"))
	c.events.On("GUILD_UPDATE", put("guild"))
	c.events.On("GUILD_DELETE", drop("guild"))
	c.events.On("READY", func(_ string, data json.RawMessage) {
		var ready struct {
			User identified `json:"user"`
		}
		if json.Unmarshal(data, &ready) == nil && ready.User.ID != "" {
			raw := struct {
				User json.RawMessage `json:"user"`
			}{}
			if json.Unmarshal(data, &raw) == nil {
				c.cache.Put("user", ready.User.ID, raw.User)
			}
		}
	})
}
