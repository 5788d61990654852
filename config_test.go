package dsync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Bloby22/dsync/internal/gateway"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig("tok")
	require.NoError(t, cfg.validate())
	require.Equal(t, "tok", cfg.Token)
	require.Equal(t, IntentsDefault, cfg.Intents)
	require.Equal(t, 50, cfg.GlobalRequestLimit)
	require.Equal(t, Duration(time.Second), cfg.GlobalRequestWindow)
	require.Equal(t, 3, cfg.RequestRetryBudget)
	require.Equal(t, 5, cfg.MaxReconnectAttempts)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
token: file-token
intents: 513
gateway_url: wss://gateway.example.net
global_request_limit: 10
global_request_window: 2s
max_reconnect_attempts: 8
heartbeat_jitter: none
close_overrides:
  4002: fatal
  4321: fresh
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "file-token", cfg.Token)
	require.Equal(t, 513, cfg.Intents)
	require.Equal(t, "wss://gateway.example.net", cfg.GatewayURL)
	require.Equal(t, 10, cfg.GlobalRequestLimit)
	require.Equal(t, Duration(2*time.Second), cfg.GlobalRequestWindow)
	require.Equal(t, 8, cfg.MaxReconnectAttempts)

	policies := cfg.closePolicies()
	require.Equal(t, gateway.PolicyFatal, policies[4002])
	require.Equal(t, gateway.PolicyFresh, policies[4321])
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `token: file-token`)

	t.Setenv("DSYNC_TOKEN", "env-token")
	t.Setenv("DSYNC_GATEWAY_URL", "wss://env.example.net")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "env-token", cfg.Token)
	require.Equal(t, "wss://env.example.net", cfg.GatewayURL)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadConfigBadDuration(t *testing.T) {
	path := writeConfigFile(t, `
token: tok
global_request_window: "not a duration"
`)
	_, err := LoadConfig(path)
	require.ErrorContains(t, err, "parsing config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing token",
			mutate:  func(c *Config) { c.Token = "" },
			wantErr: "token is required",
		},
		{
			name:    "shard index out of range",
			mutate:  func(c *Config) { c.ShardIndex = 4; c.ShardCount = 4 },
			wantErr: "shard_index",
		},
		{
			name:    "unknown jitter policy",
			mutate:  func(c *Config) { c.HeartbeatJitter = "sometimes" },
			wantErr: "heartbeat_jitter",
		},
		{
			name:    "unknown close policy",
			mutate:  func(c *Config) { c.CloseOverrides = map[int]string{4000: "panic"} },
			wantErr: "close policy",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig("tok")
			tt.mutate(cfg)
			require.ErrorContains(t, cfg.validate(), tt.wantErr)
		})
	}
}

func TestJitterFunc(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig("tok")
	cfg.HeartbeatJitter = "none"
	require.Equal(t, 1.0, cfg.jitterFunc()())

	cfg.HeartbeatJitter = "random"
	v := cfg.jitterFunc()()
	require.GreaterOrEqual(t, v, 0.0)
	require.Less(t, v, 1.0)
}
