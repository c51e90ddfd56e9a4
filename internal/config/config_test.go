package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []time.Duration{0, 2 * time.Second, 10 * time.Second}, cfg.Client.ReconnectDelays)
	assert.Equal(t, time.Second, cfg.Client.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Client.ToastDuration)
	assert.Equal(t, 50, cfg.Client.BufferCapacity)
	assert.Equal(t, "/hubs/notifications", cfg.Client.PathSuffix)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = -1 }},
		{name: "hub path", mutate: func(c *Config) { c.Server.HubPath = "hubs" }},
		{name: "empty db path", mutate: func(c *Config) { c.Database.Path = "" }},
		{name: "read timeout below ping", mutate: func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval }},
		{name: "no reconnect delays", mutate: func(c *Config) { c.Client.ReconnectDelays = nil }},
		{name: "negative delay", mutate: func(c *Config) { c.Client.ReconnectDelays = []time.Duration{-time.Second} }},
		{name: "zero buffer", mutate: func(c *Config) { c.Client.BufferCapacity = 0 }},
		{name: "kafka without topic", mutate: func(c *Config) { c.Kafka.Brokers = []string{"localhost:9092"}; c.Kafka.Topic = "" }},
		{name: "missing client", mutate: func(c *Config) { c.Client = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	disabled := DefaultConfig()
	disabled.Database.Enabled = false
	disabled.Database.Path = ""
	assert.NoError(t, disabled.Validate(), "path is only required when the audit log is enabled")
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Port, cfg.Server.Port)
	assert.Equal(t, DefaultConfig().Client.ReconnectDelays, cfg.Client.ReconnectDelays)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notifier.yaml")
	content := `
server:
  port: 9090
client:
  toast_duration: 3s
  buffer_capacity: 20
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("NOTIFIER_SERVER_PORT", "9191")
	t.Setenv("NOTIFIER_CLIENT_POLL_INTERVAL", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port, "environment overrides the file")
	assert.Equal(t, 3*time.Second, cfg.Client.ToastDuration)
	assert.Equal(t, 20, cfg.Client.BufferCapacity)
	assert.Equal(t, 250*time.Millisecond, cfg.Client.PollInterval)
	assert.Equal(t, "debug", string(cfg.Log.Level))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("NOTIFIER_CLIENT_BUFFER_CAPACITY", "0")
	_, err := Load("")
	assert.Error(t, err)
}

func TestClientConfig_LiveBaseURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Client.BaseURL = "https://configured.example"
	lookup := cfg.Client.LiveBaseURL()

	assert.Equal(t, "https://configured.example", lookup())

	t.Setenv(BaseURLEnv, "https://override.example")
	assert.Equal(t, "https://override.example", lookup(), "environment is consulted on every call")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("NOTIFIER_TEST_DOTENV=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("NOTIFIER_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv("NOTIFIER_TEST_DOTENV"))
}
