// Package rest issues admission-gated HTTP requests. Every request passes
// through the shared rate limiter before touching the wire, and every
// response's quota metadata is fed back into it.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Bloby22/dsync/internal/ratelimit"
)

const (
	defaultBaseURL   = "https://discord.com/api/v10"
	defaultUserAgent = "DiscordBot (https://github.com/Bloby22/dsync, 0.1.0)"
	defaultTimeout   = 30 * time.Second
)

// APIError is a non-2xx response that is not a rate limit.
type APIError struct {
	Status int
	Body   []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api request failed with status %d: %s", e.Status, e.Body)
}

// Config configures the request executor.
type Config struct {
	Token     string
	BaseURL   string
	UserAgent string

	// RetryBudget caps how many 429 responses are retried transparently in
	// blocking mode before the rate-limit error surfaces to the caller.
	RetryBudget int

	// NonBlocking surfaces rate-limit errors immediately instead of waiting
	// out the quota window.
	NonBlocking bool

	HTTPClient *http.Client
	Limiter    *ratelimit.Limiter
	Logger     *zap.Logger
}

// Executor performs REST calls gated by the shared rate limiter.
type Executor struct {
	cfg     Config
	client  *http.Client
	limiter *ratelimit.Limiter
	log     *zap.Logger
}

// New builds an Executor, filling unset config fields with defaults. The
// limiter is required: the executor never bypasses admission control.
func New(cfg Config) *Executor {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.RetryBudget <= 0 {
		cfg.RetryBudget = 3
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Executor{
		cfg:     cfg,
		client:  cfg.HTTPClient,
		limiter: cfg.Limiter,
		log:     cfg.Logger,
	}
}

// Do executes one request against a route. In blocking mode 429s are waited
// out and retried transparently up to the retry budget; in non-blocking mode
// the rate-limit error surfaces to the caller at once.
func (e *Executor) Do(ctx context.Context, route ratelimit.Route, body interface{}) ([]byte, error) {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		if e.cfg.NonBlocking {
			if err := e.limiter.Allow(route); err != nil {
				return nil, err
			}
		} else if err := e.limiter.Wait(ctx, route); err != nil {
			return nil, err
		}

		data, err := e.once(ctx, route, encoded)
		if err == nil {
			return data, nil
		}

		// Only 429s are retried here; the recorded window makes the next
		// Wait block for exactly the server-mandated backoff.
		var rlErr *ratelimit.RateLimitError
		if e.cfg.NonBlocking || attempt >= e.cfg.RetryBudget || !errors.As(err, &rlErr) {
			return nil, err
		}
	}
}

// once performs a single HTTP exchange, feeding quota metadata back into the
// limiter and classifying 429s.
func (e *Executor) once(ctx context.Context, route ratelimit.Route, body []byte) ([]byte, error) {
	requestID := uuid.New().String()

	req, err := http.NewRequestWithContext(ctx, route.Method, e.cfg.BaseURL+route.Path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+e.cfg.Token)
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if info, ok := ratelimit.ParseHeaders(resp.Header, time.Now()); ok {
		e.limiter.UpdateFromResponse(route, info)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter, global := parse429(data, resp.Header)
		rlErr := e.limiter.RecordTooManyRequests(route, retryAfter, global)
		e.log.Warn("request rate limited",
			zap.String("request_id", requestID),
			zap.String("route", route.Key()),
			zap.Bool("global", global),
			zap.Duration("retry_after", retryAfter),
		)
		return nil, rlErr
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &APIError{Status: resp.StatusCode, Body: data}
	}

	e.log.Debug("request completed",
		zap.String("request_id", requestID),
		zap.String("method", route.Method),
		zap.String("path", route.Path),
		zap.Int("status", resp.StatusCode),
	)
	return data, nil
}

// parse429 extracts the retry-after and global flag from a 429 body. An
// unparseable body falls back to a conservative bucket-scoped one second.
func parse429(body []byte, h http.Header) (time.Duration, bool) {
	var payload struct {
		RetryAfter float64 `json:"retry_after"`
		Global     bool    `json:"global"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.RetryAfter <= 0 {
		return time.Second, false
	}
	global := payload.Global || h.Get("X-RateLimit-Global") == "true"
	return time.Duration(payload.RetryAfter * float64(time.Second)), global
}
