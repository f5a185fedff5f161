package napcat

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "napcat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
base_url: ws://bot.internal:3001
access_token: hunter2
split: true
reconnection:
  max_attempts: 5
  delay: 2s
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://bot.internal:3001", cfg.BaseURL)
	assert.Equal(t, "hunter2", cfg.AccessToken)
	assert.True(t, cfg.Split)
	assert.False(t, cfg.Reconnection.Disabled)
	assert.Equal(t, 5, cfg.Reconnection.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Reconnection.Delay)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfigFile(t, `
host: 127.0.0.1
port: 3001
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ws", cfg.Protocol)
	assert.Equal(t, DefaultMaxAttempts, cfg.Reconnection.MaxAttempts)
	assert.Equal(t, DefaultReconnectDelay, cfg.Reconnection.Delay)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfigFile(t, `
base_url: ws://bot.internal:3001
`)
	t.Setenv("NAPCAT_ACCESS_TOKEN", "from-env")
	t.Setenv("NAPCAT_RECONNECTION_MAX_ATTEMPTS", "7")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.AccessToken)
	assert.Equal(t, 7, cfg.Reconnection.MaxAttempts)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"base url", Config{BaseURL: "ws://h:1"}, true},
		{"secure base url", Config{BaseURL: "wss://h:1"}, true},
		{"host and port", Config{Host: "h", Port: 3001}, true},
		{"nothing", Config{}, false},
		{"host without port", Config{Host: "h"}, false},
		{"port out of range", Config{Host: "h", Port: 70000}, false},
		{"http scheme", Config{BaseURL: "http://h:1"}, false},
		{"bad protocol", Config{Host: "h", Port: 1, Protocol: "tcp"}, false},
		{"negative attempts", Config{BaseURL: "ws://h:1", Reconnection: Reconnection{MaxAttempts: -1}}, false},
		{"negative delay", Config{BaseURL: "ws://h:1", Reconnection: Reconnection{Delay: -time.Second}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestEndpoint(t *testing.T) {
	cfg := Config{Host: "127.0.0.1", Port: 3001, Protocol: "ws"}
	assert.Equal(t, "ws://127.0.0.1:3001", cfg.endpoint(""))
	assert.Equal(t, "ws://127.0.0.1:3001/event", cfg.endpoint("/event"))

	cfg = Config{BaseURL: "wss://bot.internal:6700/", AccessToken: "a b&c"}
	assert.Equal(t, "wss://bot.internal:6700/api?access_token=a+b%26c", cfg.endpoint("/api"))
}
