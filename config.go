package dsync

import (
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Bloby22/dsync/internal/gateway"
)

// Duration wraps time.Duration so YAML configs can use humane strings such
// as "500ms" or "1s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"1s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the client's configuration surface. Zero values fall back to the
// defaults documented per field; only Token is required.
type Config struct {
	// Token is the long-lived credential used for REST authorization and the
	// gateway identify/resume handshake.
	Token string `yaml:"token"`

	// Intents are the capability flags declared at identify time. Defaults
	// to IntentsDefault.
	Intents int `yaml:"intents"`

	// GatewayURL overrides gateway discovery. When empty the streaming
	// endpoint is fetched from the REST API on Open.
	GatewayURL string `yaml:"gateway_url"`

	// APIBaseURL overrides the REST endpoint, mainly for tests.
	APIBaseURL string `yaml:"api_base_url"`

	// ShardIndex and ShardCount identify this connection's shard. The shard
	// tuple is only sent when ShardCount > 1.
	ShardIndex int `yaml:"shard_index"`
	ShardCount int `yaml:"shard_count"`

	// GlobalRequestLimit requests per GlobalRequestWindow are admitted
	// process-wide. Defaults to 50 per second.
	GlobalRequestLimit  int      `yaml:"global_request_limit"`
	GlobalRequestWindow Duration `yaml:"global_request_window"`

	// DefaultBucketLimit seeds buckets first discovered through a 429.
	DefaultBucketLimit int `yaml:"default_bucket_limit"`

	// RequestRetryBudget caps transparent 429 retries per request. Defaults
	// to 3.
	RequestRetryBudget int `yaml:"request_retry_budget"`

	// NonBlockingRequests surfaces rate-limit errors to callers instead of
	// waiting out quota windows.
	NonBlockingRequests bool `yaml:"non_blocking_requests"`

	// MaxReconnectAttempts before the gateway connection fails permanently.
	// Defaults to 5.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`

	// HeartbeatJitter selects the first-heartbeat jitter policy: "random"
	// (default) or "none".
	HeartbeatJitter string `yaml:"heartbeat_jitter"`

	// CloseOverrides adjusts the close-code table: each entry maps a numeric
	// close code to "resume", "fresh" or "fatal". Codes absent from the
	// table are treated as resumable.
	CloseOverrides map[int]string `yaml:"close_overrides"`

	Logger     *zap.Logger  `yaml:"-"`
	HTTPClient *http.Client `yaml:"-"`
}

// DefaultConfig returns a Config with the default quota, retry and recovery
// policy for the given token.
func DefaultConfig(token string) *Config {
	return &Config{
		Token:                token,
		Intents:              IntentsDefault,
		GlobalRequestLimit:   50,
		GlobalRequestWindow:  Duration(time.Second),
		DefaultBucketLimit:   1,
		RequestRetryBudget:   3,
		MaxReconnectAttempts: 5,
		HeartbeatJitter:      "random",
	}
}

// LoadConfig reads a YAML config file and applies environment overrides:
// DSYNC_TOKEN, DSYNC_GATEWAY_URL and DSYNC_API_BASE_URL.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if v := os.Getenv("DSYNC_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("DSYNC_GATEWAY_URL"); v != "" {
		cfg.GatewayURL = v
	}
	if v := os.Getenv("DSYNC_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Token == "" {
		return fmt.Errorf("config: token is required")
	}
	if c.ShardCount > 1 && c.ShardIndex >= c.ShardCount {
		return fmt.Errorf("config: shard_index %d out of range for shard_count %d", c.ShardIndex, c.ShardCount)
	}
	switch c.HeartbeatJitter {
	case "", "random", "none":
	default:
		return fmt.Errorf("config: unknown heartbeat_jitter %q", c.HeartbeatJitter)
	}
	for code, policy := range c.CloseOverrides {
		switch policy {
		case "resume", "fresh", "fatal":
		default:
			return fmt.Errorf("config: unknown close policy %q for code %d", policy, code)
		}
	}
	return nil
}

// jitterFunc maps the configured jitter policy to a scale factor source.
func (c *Config) jitterFunc() func() float64 {
	if c.HeartbeatJitter == "none" {
		return func() float64 { return 1 }
	}
	return rand.Float64
}

// closePolicies translates CloseOverrides into the gateway's table entries.
func (c *Config) closePolicies() map[int]gateway.ClosePolicy {
	if len(c.CloseOverrides) == 0 {
		return nil
	}
	out := make(map[int]gateway.ClosePolicy, len(c.CloseOverrides))
	for code, policy := range c.CloseOverrides {
		switch policy {
		case "resume":
			out[code] = gateway.PolicyResume
		case "fresh":
			out[code] = gateway.PolicyFresh
		case "fatal":
			out[code] = gateway.PolicyFatal
		}
	}
	return out
}
