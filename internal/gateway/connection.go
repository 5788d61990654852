// Package gateway implements the streaming socket lifecycle: handshake,
// identify/resume authentication, heartbeating, dispatch decoding, and
// close-code driven recovery with exponential backoff.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeTimeout     = 10 * time.Second
	closeGracePeriod = time.Second

	// The gateway budget for outbound commands is 120 per 60 seconds.
	sendRatePerSecond = 2
	sendBurst         = 120

	// One identify per 5 seconds.
	identifyInterval = 5 * time.Second
)

// Config is the connection's externally supplied surface. Everything the
// state machine needs (credentials, capability flags, recovery policy) is
// an input here, never computed internally.
type Config struct {
	// URL of the streaming endpoint.
	URL string

	// Token is the long-lived credential used for identify and resume.
	Token string

	// Intents are the declared capability flags sent with identify.
	Intents int

	// ShardIndex and ShardCount describe this connection's shard. The shard
	// tuple is only sent when ShardCount > 1.
	ShardIndex int
	ShardCount int

	// MaxReconnectAttempts terminates the connection permanently once
	// exceeded. Defaults to 5.
	MaxReconnectAttempts int

	// Jitter scales the delay before the first heartbeat. Defaults to a
	// uniformly random factor in [0, 1).
	Jitter func() float64

	// ClosePolicies overrides entries of the default close-code table.
	ClosePolicies map[int]ClosePolicy

	// OnEvent receives every decoded dispatch frame, in received order.
	OnEvent func(eventType string, sequence int64, data []byte)

	// OnFatal receives the error that permanently terminated the connection:
	// a fatal close code or an exhausted reconnect budget.
	OnFatal func(err error)

	Dialer *websocket.Dialer
	Logger *zap.Logger

	// backoff overrides the reconnect delay schedule, for tests.
	backoff func(attempt int) time.Duration
}

// Connection owns one streaming socket and its session state. Session fields
// (id, sequence, resume URL) are mutated only through frame handling and
// close recovery; external code reads them through Session.
type Connection struct {
	cfg      Config
	log      *zap.Logger
	id       string
	dialer   *websocket.Dialer
	policies map[int]ClosePolicy
	backoff  func(attempt int) time.Duration

	sendLimiter     *rate.Limiter
	identifyLimiter *rate.Limiter

	mu          sync.Mutex
	status      Status
	conn        *websocket.Conn
	sendCh      chan []byte
	connCancel  context.CancelFunc
	hb          *heartbeatMonitor
	sessionID   string
	resumeURL   string
	sequence    int64
	attempts    int
	recovering  bool
	ctx         context.Context
	cancel      context.CancelFunc
	readyCh     chan struct{}
	readySignal bool
	fatalErr    error
}

// New creates a Connection. The socket is not dialed until Open.
func New(cfg Config) *Connection {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.Jitter == nil {
		cfg.Jitter = rand.Float64
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	}

	policies := DefaultClosePolicies()
	for code, policy := range cfg.ClosePolicies {
		policies[code] = policy
	}

	backoff := cfg.backoff
	if backoff == nil {
		backoff = defaultBackoff
	}

	id := uuid.New().String()
	return &Connection{
		cfg:             cfg,
		log:             cfg.Logger.With(zap.String("connection_id", id)),
		id:              id,
		dialer:          dialer,
		policies:        policies,
		backoff:         backoff,
		sendLimiter:     rate.NewLimiter(sendRatePerSecond, sendBurst),
		identifyLimiter: rate.NewLimiter(rate.Every(identifyInterval), 1),
		status:          StatusIdle,
	}
}

// ID returns the connection's unique identifier, used in log fields.
func (c *Connection) ID() string {
	return c.id
}

// Status returns the state machine's current state.
func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Session returns the session fields that survive a reconnect.
func (c *Connection) Session() (sessionID string, sequence int64, resumeURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID, c.sequence, c.resumeURL
}

// defaultBackoff is the reconnect delay schedule: min(2^attempt, 60) seconds.
func defaultBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return 60 * time.Second
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > 60*time.Second {
		d = 60 * time.Second
	}
	return d
}

// Open dials the gateway and blocks until the handshake reaches Ready, the
// context expires, or the connection fails fatally.
func (c *Connection) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusIdle && c.status != StatusDisconnected {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.status = StatusConnecting
	c.readyCh = make(chan struct{})
	c.readySignal = false
	c.fatalErr = nil
	c.attempts = 0
	readyCh := c.readyCh
	lifetime := c.ctx
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.mu.Lock()
		c.status = StatusDisconnected
		c.mu.Unlock()
		return fmt.Errorf("opening gateway connection: %w", err)
	}

	select {
	case <-readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-lifetime.Done():
		c.mu.Lock()
		err := c.fatalErr
		c.mu.Unlock()
		if err == nil {
			err = ErrNotConnected
		}
		return err
	}
}

// Close stops the connection: the heartbeat timer is cancelled, the socket is
// closed with a normal closure frame, and any pending reconnect backoff is
// aborted. Rate-limit state lives elsewhere and is left untouched.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.connCancel != nil {
		c.connCancel()
		c.connCancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.sendCh = nil
	c.hb = nil
	c.status = StatusIdle
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	deadline := time.Now().Add(closeGracePeriod)
	conn.WriteControl(websocket.CloseMessage, message, deadline)
	return conn.Close()
}

// gatewayURL picks the dial target: the resume endpoint when session data is
// present, the configured endpoint otherwise.
func (c *Connection) gatewayURL() string {
	c.mu.Lock()
	target := c.cfg.URL
	if c.sessionID != "" && c.resumeURL != "" {
		target = c.resumeURL
	}
	c.mu.Unlock()

	if !strings.Contains(target, "?") {
		target += "?v=10&encoding=json"
	}
	return target
}

// dial opens the socket and starts the read loop and write pump.
func (c *Connection) dial(ctx context.Context) error {
	target := c.gatewayURL()
	c.log.Info("dialing gateway", zap.String("url", target))

	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	connCtx, connCancel := context.WithCancel(c.ctx)
	c.conn = conn
	c.connCancel = connCancel
	c.sendCh = make(chan []byte, 64)
	c.status = StatusAwaitingHello
	sendCh := c.sendCh
	c.mu.Unlock()

	go c.writePump(connCtx, conn, sendCh)
	go c.readLoop(connCtx, conn)
	return nil
}

// readLoop decodes inbound frames until the socket errors or closes.
// Malformed frames are dropped; the loop continues.
func (c *Connection) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(ctx, err)
			return
		}

		p, derr := decodePayload(data)
		if derr != nil {
			c.log.Warn("dropping malformed frame", zap.Error(derr))
			continue
		}
		c.handlePayload(ctx, p)
	}
}

// writePump is the socket's single writer. Outbound frames are throttled
// against the gateway command budget before hitting the wire.
func (c *Connection) writePump(ctx context.Context, conn *websocket.Conn, sendCh chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-sendCh:
			if err := c.sendLimiter.Wait(ctx); err != nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Warn("failed to write frame", zap.Error(err))
				return
			}
		}
	}
}

// send encodes a frame and queues it for the write pump.
func (c *Connection) send(ctx context.Context, op int, data interface{}) error {
	encoded, err := encodePayload(op, data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	sendCh := c.sendCh
	c.mu.Unlock()
	if sendCh == nil {
		return ErrNotConnected
	}

	select {
	case sendCh <- encoded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdatePresence sends a presence update frame.
func (c *Connection) UpdatePresence(ctx context.Context, data interface{}) error {
	return c.send(ctx, OpPresenceUpdate, data)
}

// UpdateVoiceState sends a voice state update frame.
func (c *Connection) UpdateVoiceState(ctx context.Context, data interface{}) error {
	return c.send(ctx, OpVoiceStateUpdate, data)
}

// RequestGuildMembers asks the gateway to stream member chunks.
func (c *Connection) RequestGuildMembers(ctx context.Context, data interface{}) error {
	return c.send(ctx, OpRequestGuildMembers, data)
}

func (c *Connection) sendHeartbeat(ctx context.Context) error {
	c.mu.Lock()
	seq := c.sequence
	c.mu.Unlock()

	var data interface{}
	if seq > 0 {
		data = seq
	}
	return c.send(ctx, OpHeartbeat, data)
}

// handlePayload routes one decoded frame through the state machine.
func (c *Connection) handlePayload(ctx context.Context, p *payload) {
	switch p.Op {
	case OpHello:
		c.handleHello(ctx, p)

	case OpHeartbeat:
		// The server may request an immediate beat.
		if err := c.sendHeartbeat(ctx); err != nil {
			c.log.Warn("failed to answer heartbeat request", zap.Error(err))
		}

	case OpHeartbeatAck:
		c.mu.Lock()
		hb := c.hb
		c.mu.Unlock()
		if hb != nil {
			hb.ack()
		}

	case OpReconnect:
		c.log.Info("server requested reconnect")
		c.forceReconnect()

	case OpInvalidSession:
		var resumable bool
		if err := decodeJSON(p.Data, &resumable); err != nil {
			// Unreadable flag: assume the session is gone rather than replay
			// a sequence the server may have invalidated.
			c.log.Warn("unreadable invalid-session flag, treating session as not resumable", zap.Error(err))
			resumable = false
		}
		c.log.Info("session invalidated", zap.Bool("resumable", resumable))
		if !resumable {
			c.clearSession()
		}
		c.forceReconnect()

	case OpDispatch:
		c.handleDispatch(p)

	default:
		c.log.Debug("ignoring unknown operation code", zap.Int("op", p.Op))
	}
}

// handleHello starts the heartbeat monitor with the server-provided interval,
// then authenticates: resume when prior session data exists, identify
// otherwise. The monitor is running before identify/resume goes out.
func (c *Connection) handleHello(ctx context.Context, p *payload) {
	var hello helloData
	if err := decodeJSON(p.Data, &hello); err != nil || hello.HeartbeatInterval <= 0 {
		c.log.Warn("dropping malformed hello frame", zap.Error(err))
		return
	}
	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond

	hb := newHeartbeatMonitor(interval, c.cfg.Jitter, c.sendHeartbeat, c.onZombie, c.log)

	c.mu.Lock()
	c.hb = hb
	sessionID := c.sessionID
	sequence := c.sequence
	c.mu.Unlock()

	go hb.run(ctx)
	c.log.Info("received hello", zap.Duration("heartbeat_interval", interval))

	if sessionID != "" && sequence > 0 {
		c.setStatus(StatusResuming)
		err := c.send(ctx, OpResume, resumeData{
			Token:     c.cfg.Token,
			SessionID: sessionID,
			Sequence:  sequence,
		})
		if err != nil {
			c.log.Warn("failed to send resume", zap.Error(err))
		}
		return
	}

	c.setStatus(StatusIdentifying)
	if err := c.identifyLimiter.Wait(ctx); err != nil {
		return
	}
	identify := identifyData{
		Token:   c.cfg.Token,
		Intents: c.cfg.Intents,
		Properties: identifyProperties{
			OS:      "linux",
			Browser: "dsync",
			Device:  "dsync",
		},
	}
	if c.cfg.ShardCount > 1 {
		identify.Shard = &[2]int{c.cfg.ShardIndex, c.cfg.ShardCount}
	}
	if err := c.send(ctx, OpIdentify, identify); err != nil {
		c.log.Warn("failed to send identify", zap.Error(err))
	}
}

// handleDispatch stores the sequence (never regressing on out-of-order
// delivery), tracks session milestones, and forwards the event.
func (c *Connection) handleDispatch(p *payload) {
	c.mu.Lock()
	if p.Sequence >= c.sequence {
		c.sequence = p.Sequence
	}
	c.mu.Unlock()

	switch p.Type {
	case "READY":
		var ready readyData
		if err := decodeJSON(p.Data, &ready); err != nil {
			c.log.Warn("dropping malformed ready frame", zap.Error(err))
			return
		}
		c.mu.Lock()
		c.sessionID = ready.SessionID
		c.resumeURL = ready.ResumeGatewayURL
		c.status = StatusReady
		c.attempts = 0
		c.signalReady()
		c.mu.Unlock()
		c.log.Info("gateway ready", zap.String("session_id", ready.SessionID))

	case "RESUMED":
		c.mu.Lock()
		c.status = StatusReady
		c.attempts = 0
		c.signalReady()
		c.mu.Unlock()
		c.log.Info("session resumed")
	}

	if c.cfg.OnEvent != nil {
		c.cfg.OnEvent(p.Type, p.Sequence, p.Data)
	}
}

// signalReady unblocks Open exactly once per Open call. Caller holds c.mu.
func (c *Connection) signalReady() {
	if !c.readySignal && c.readyCh != nil {
		close(c.readyCh)
		c.readySignal = true
	}
}

func (c *Connection) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Connection) clearSession() {
	c.mu.Lock()
	c.sessionID = ""
	c.resumeURL = ""
	c.sequence = 0
	c.mu.Unlock()
}

// handleReadError classifies a socket failure and drives recovery. A close
// code found in the fatal set terminates the machine; fresh codes clear the
// session first; everything else, including unlisted codes and plain network
// errors, retries with resume.
func (c *Connection) handleReadError(ctx context.Context, err error) {
	// The socket was torn down deliberately; nothing to recover.
	if ctx.Err() != nil {
		return
	}

	c.teardown()

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		policy := c.policies[closeErr.Code] // absent codes default to resume
		c.log.Info("gateway connection closed",
			zap.Int("close_code", closeErr.Code),
			zap.String("reason", closeErr.Text),
			zap.String("action", policy.String()),
		)

		switch policy {
		case PolicyFatal:
			c.fatal(&CloseError{Code: closeErr.Code, Reason: closeErr.Text})
			return
		case PolicyFresh:
			c.clearSession()
		}
	} else {
		c.log.Warn("gateway read failed", zap.Error(err))
	}

	c.reconnect()
}

// onZombie force-closes the socket after a missed heartbeat ack and routes
// through the same recovery path as an abnormal close, preserving the
// session for a resume attempt.
func (c *Connection) onZombie() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		message := websocket.FormatCloseMessage(websocket.CloseServiceRestart, "heartbeat ack timeout")
		conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeGracePeriod))
	}

	c.teardown()
	c.reconnect()
}

// forceReconnect tears the socket down on a server instruction (reconnect or
// invalid session) and redials at once: the server asked for the cycle, so no
// backoff is slept and no attempt budget is charged. Only a failed immediate
// dial falls back to the backoff loop.
func (c *Connection) forceReconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		message := websocket.FormatCloseMessage(websocket.CloseServiceRestart, "")
		conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeGracePeriod))
	}

	c.teardown()

	if !c.beginRecovery() {
		return
	}
	go func() {
		c.mu.Lock()
		if c.ctx == nil || c.ctx.Err() != nil {
			c.mu.Unlock()
			c.endRecovery()
			return
		}
		lifetime := c.ctx
		c.status = StatusConnecting
		c.mu.Unlock()

		if err := c.dial(lifetime); err != nil {
			c.log.Warn("immediate redial failed", zap.Error(err))
			c.endRecovery()
			c.reconnect()
			return
		}
		c.endRecovery()
	}()
}

// teardown closes the current socket and stops its goroutines, including the
// heartbeat monitor. Safe to call more than once per socket.
func (c *Connection) teardown() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.connCancel
	c.conn = nil
	c.connCancel = nil
	c.sendCh = nil
	c.hb = nil
	c.status = StatusDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

// beginRecovery claims the single recovery slot. A dead network surfaces as
// both a read error and a missed heartbeat ack; whichever path claims the
// slot first drives recovery, the other backs off.
func (c *Connection) beginRecovery() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recovering {
		return false
	}
	c.recovering = true
	return true
}

func (c *Connection) endRecovery() {
	c.mu.Lock()
	c.recovering = false
	c.mu.Unlock()
}

// reconnect schedules recovery with exponential backoff. Each failed attempt
// increments the counter; the counter only resets on reaching Ready again.
// Exceeding the attempt budget escalates to a fatal, surfaced error.
func (c *Connection) reconnect() {
	if !c.beginRecovery() {
		return
	}
	go func() {
		defer c.endRecovery()
		for {
			c.mu.Lock()
			if c.ctx == nil || c.ctx.Err() != nil {
				c.mu.Unlock()
				return
			}
			c.attempts++
			attempt := c.attempts
			c.status = StatusReconnecting
			lifetime := c.ctx
			c.mu.Unlock()

			if attempt > c.cfg.MaxReconnectAttempts {
				c.fatal(&ConnectionError{
					Attempts: attempt - 1,
					Cause:    errors.New("reconnect budget exhausted"),
				})
				return
			}

			delay := c.backoff(attempt)
			c.log.Info("reconnecting",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)

			timer := time.NewTimer(delay)
			select {
			case <-lifetime.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			c.setStatus(StatusConnecting)
			if err := c.dial(lifetime); err != nil {
				c.log.Warn("reconnect attempt failed",
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				continue
			}
			return
		}
	}()
}

// fatal terminates the connection permanently and surfaces the error upward.
// Fatal failures are never silently dropped.
func (c *Connection) fatal(err error) {
	c.log.Error("gateway connection terminated", zap.Error(err))

	c.mu.Lock()
	c.fatalErr = err
	c.status = StatusDisconnected
	cancel := c.cancel
	c.mu.Unlock()

	if c.cfg.OnFatal != nil {
		c.cfg.OnFatal(err)
	}
	if cancel != nil {
		cancel()
	}
}
