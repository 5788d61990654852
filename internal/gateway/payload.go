package gateway

import (
	"encoding/json"
	"fmt"
)

// Gateway operation codes.
const (
	OpDispatch            = 0
	OpHeartbeat           = 1
	OpIdentify            = 2
	OpPresenceUpdate      = 3
	OpVoiceStateUpdate    = 4
	OpResume              = 6
	OpReconnect           = 7
	OpRequestGuildMembers = 8
	OpInvalidSession      = 9
	OpHello               = 10
	OpHeartbeatAck        = 11
)

// maxFrameSize bounds inbound frames to protect against OOM on a hostile or
// broken peer.
const maxFrameSize = 10 * 1024 * 1024

// payload is the envelope every gateway frame travels in. Sequence and Type
// are only present on dispatch frames.
type payload struct {
	Op       int             `json:"op"`
	Sequence int64           `json:"s,omitempty"`
	Type     string          `json:"t,omitempty"`
	Data     json.RawMessage `json:"d,omitempty"`
}

// encodePayload wraps op and data into a wire frame.
func encodePayload(op int, data interface{}) ([]byte, error) {
	d, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding op %d data: %w", op, err)
	}
	return json.Marshal(payload{Op: op, Data: d})
}

// decodePayload validates and decodes one inbound frame. Callers treat any
// error as a malformed frame: the frame is dropped, the connection continues.
func decodePayload(data []byte) (*payload, error) {
	if len(data) > maxFrameSize {
		return nil, fmt.Errorf("%w: frame size %d exceeds maximum %d bytes", ErrMalformedFrame, len(data), maxFrameSize)
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return &p, nil
}

// decodeJSON decodes a frame's data field, treating empty data as malformed.
func decodeJSON(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return ErrMalformedFrame
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"` // milliseconds
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
	Compress   bool               `json:"compress,omitempty"`
	Shard      *[2]int            `json:"shard,omitempty"`
}

type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Sequence  int64  `json:"seq"`
}

type readyData struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
}
