package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Bloby22/dsync/internal/ratelimit"
)

// GatewayBot describes the streaming endpoint and session budget returned by
// the gateway discovery route.
type GatewayBot struct {
	URL               string `json:"url"`
	Shards            int    `json:"shards"`
	SessionStartLimit struct {
		Total          int `json:"total"`
		Remaining      int `json:"remaining"`
		ResetAfter     int `json:"reset_after"`
		MaxConcurrency int `json:"max_concurrency"`
	} `json:"session_start_limit"`
}

// GatewayBot fetches the gateway URL and recommended shard count.
func (e *Executor) GatewayBot(ctx context.Context) (*GatewayBot, error) {
	data, err := e.Do(ctx, ratelimit.NewRoute(http.MethodGet, "/gateway/bot"), nil)
	if err != nil {
		return nil, err
	}
	var gb GatewayBot
	if err := json.Unmarshal(data, &gb); err != nil {
		return nil, fmt.Errorf("decoding gateway response: %w", err)
	}
	return &gb, nil
}

// Me fetches the authenticated user.
func (e *Executor) Me(ctx context.Context) (json.RawMessage, error) {
	return e.Do(ctx, ratelimit.NewRoute(http.MethodGet, "/users/@me"), nil)
}

// Channel fetches a channel by id. The channel id is the route's major
// parameter.
func (e *Executor) Channel(ctx context.Context, channelID string) (json.RawMessage, error) {
	route := ratelimit.NewRoute(http.MethodGet, "/channels/"+channelID, channelID)
	return e.Do(ctx, route, nil)
}

// Guild fetches a guild by id.
func (e *Executor) Guild(ctx context.Context, guildID string) (json.RawMessage, error) {
	route := ratelimit.NewRoute(http.MethodGet, "/guilds/"+guildID, guildID)
	return e.Do(ctx, route, nil)
}

// CreateMessage posts a message to a channel.
func (e *Executor) CreateMessage(ctx context.Context, channelID, content string) (json.RawMessage, error) {
	route := ratelimit.NewRoute(http.MethodPost, "/channels/"+channelID+"/messages", channelID)
	return e.Do(ctx, route, map[string]string{"content": content})
}

// DeleteMessage removes a message from a channel.
func (e *Executor) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	route := ratelimit.NewRoute(http.MethodDelete, "/channels/"+channelID+"/messages/"+messageID, channelID)
	_, err := e.Do(ctx, route, nil)
	return err
}
