package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"notifier/internal/logging"
)

// EnvPrefix namespaces every environment variable, e.g. NOTIFIER_SERVER_PORT
const EnvPrefix = "NOTIFIER"

// BaseURLEnv overrides the client hub base URL and is read on every connect attempt
const BaseURLEnv = EnvPrefix + "_CLIENT_BASE_URL"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// for both the hub server and the terminal client
type Config struct {
	Server    *ServerConfig    `mapstructure:"server"`
	Database  *DatabaseConfig  `mapstructure:"database"`
	WebSocket *WebSocketConfig `mapstructure:"websocket"`
	Auth      *AuthConfig      `mapstructure:"auth"`
	Redis     *RedisConfig     `mapstructure:"redis"`
	Kafka     *KafkaConfig     `mapstructure:"kafka"`
	Client    *ClientConfig    `mapstructure:"client"`
	Log       logging.Config   `mapstructure:"log"`
}

// ServerConfig controls the HTTP listener hosting the REST API and the hub endpoint
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	HubPath      string        `mapstructure:"hub_path"`
}

// DatabaseConfig points at the sqlite broadcast audit log
type DatabaseConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WebSocketConfig is shared by the hub endpoint and the client dialer
type WebSocketConfig struct {
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	BufferSize       int           `mapstructure:"buffer_size"`
}

// AuthConfig holds the JWT settings shared with the rest of the school backend
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// RedisConfig enables the Redis backplane when Addr is set
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// KafkaConfig enables domain-event ingest when Brokers is non-empty
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// ClientConfig drives the connection manager and the presentation adapter
type ClientConfig struct {
	BaseURL         string          `mapstructure:"base_url"`
	PathSuffix      string          `mapstructure:"path_suffix"`
	Origin          string          `mapstructure:"origin"`
	FallbackOrigin  string          `mapstructure:"fallback_origin"`
	DevHosts        []string        `mapstructure:"dev_hosts"`
	TokenFile       string          `mapstructure:"token_file"`
	ReconnectDelays []time.Duration `mapstructure:"reconnect_delays"`
	InvokeTimeout   time.Duration   `mapstructure:"invoke_timeout"`
	PollInterval    time.Duration   `mapstructure:"poll_interval"`
	ToastDuration   time.Duration   `mapstructure:"toast_duration"`
	BufferCapacity  int             `mapstructure:"buffer_capacity"`
}

// DefaultConfig returns production-ready defaults
// FUNCTIONAL DISCOVERY: Reconnect delays 0s/2s/10s, 1s state mirroring, 5s toasts and a
// 50 entry buffer are the notification subsystem's contract values
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			HubPath:      "/hubs/notifications",
		},
		Database: &DatabaseConfig{
			Enabled: true,
			Path:    "./notifier.db",
			Timeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:     15 * time.Second,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     10 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			BufferSize:       100,
		},
		Auth: &AuthConfig{
			JWTSecret: "",
			Issuer:    "school",
			TokenTTL:  24 * time.Hour,
		},
		Redis: &RedisConfig{
			Channel: "notifier:broadcasts",
		},
		Kafka: &KafkaConfig{
			Topic:   "school.events",
			GroupID: "notifier",
		},
		Client: &ClientConfig{
			PathSuffix:      "/hubs/notifications",
			Origin:          "http://localhost:8080",
			FallbackOrigin:  "https://api.school.example",
			DevHosts:        []string{"localhost", "127.0.0.1", "::1"},
			TokenFile:       "",
			ReconnectDelays: []time.Duration{0, 2 * time.Second, 10 * time.Second},
			InvokeTimeout:   10 * time.Second,
			PollInterval:    time.Second,
			ToastDuration:   5 * time.Second,
			BufferCapacity:  50,
		},
		Log: logging.DefaultConfig(),
	}
}

// Validate rejects configurations that would fail at runtime
func (c *Config) Validate() error {
	if c.Server == nil {
		return errors.New("server configuration is required")
	}
	// Port 0 asks the kernel for a free port
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New("server port must be between 0 and 65535")
	}
	if c.Server.Host == "" {
		return errors.New("server host cannot be empty")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	if !strings.HasPrefix(c.Server.HubPath, "/") {
		return errors.New("server hub path must start with /")
	}

	if c.Database == nil {
		return errors.New("database configuration is required")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		return errors.New("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return errors.New("database timeout must be positive")
	}

	if c.WebSocket == nil {
		return errors.New("websocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return errors.New("websocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return errors.New("websocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 || c.WebSocket.HandshakeTimeout <= 0 {
		return errors.New("websocket timeouts must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return errors.New("websocket buffer size must be positive")
	}

	if c.Auth == nil {
		return errors.New("auth configuration is required")
	}
	if c.Redis == nil || c.Kafka == nil {
		return errors.New("redis and kafka sections are required")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka topic cannot be empty when brokers are set")
	}

	if c.Client == nil {
		return errors.New("client configuration is required")
	}
	if len(c.Client.ReconnectDelays) == 0 {
		return errors.New("client reconnect delays cannot be empty")
	}
	for _, d := range c.Client.ReconnectDelays {
		if d < 0 {
			return errors.New("client reconnect delays cannot be negative")
		}
	}
	if c.Client.PollInterval <= 0 || c.Client.ToastDuration <= 0 || c.Client.InvokeTimeout <= 0 {
		return errors.New("client intervals must be positive")
	}
	if c.Client.BufferCapacity <= 0 {
		return errors.New("client buffer capacity must be positive")
	}
	if c.Client.FallbackOrigin == "" {
		return errors.New("client fallback origin cannot be empty")
	}
	return nil
}

// Addr is the listen address of the HTTP server
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LiveBaseURL returns a lookup of the hub base URL that consults the environment on every
// call, so a changed NOTIFIER_CLIENT_BASE_URL applies to the next connect attempt
func (c *ClientConfig) LiveBaseURL() func() string {
	configured := c.BaseURL
	return func() string {
		if v := os.Getenv(BaseURLEnv); v != "" {
			return v
		}
		return configured
	}
}

// Load builds the configuration from defaults, an optional YAML/JSON/TOML file and
// NOTIFIER_* environment variables, in increasing order of precedence
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=value files into the process environment; missing files are
// skipped and variables already set are never overridden
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal
// TECHNICAL DISCOVERY: viper only consults the environment for keys it already knows
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.hub_path", d.Server.HubPath)

	v.SetDefault("database.enabled", d.Database.Enabled)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.timeout", d.Database.Timeout)

	v.SetDefault("websocket.ping_interval", d.WebSocket.PingInterval)
	v.SetDefault("websocket.read_timeout", d.WebSocket.ReadTimeout)
	v.SetDefault("websocket.write_timeout", d.WebSocket.WriteTimeout)
	v.SetDefault("websocket.handshake_timeout", d.WebSocket.HandshakeTimeout)
	v.SetDefault("websocket.buffer_size", d.WebSocket.BufferSize)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.issuer", d.Auth.Issuer)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.channel", d.Redis.Channel)

	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.group_id", d.Kafka.GroupID)

	v.SetDefault("client.base_url", d.Client.BaseURL)
	v.SetDefault("client.path_suffix", d.Client.PathSuffix)
	v.SetDefault("client.origin", d.Client.Origin)
	v.SetDefault("client.fallback_origin", d.Client.FallbackOrigin)
	v.SetDefault("client.dev_hosts", d.Client.DevHosts)
	v.SetDefault("client.token_file", d.Client.TokenFile)
	v.SetDefault("client.reconnect_delays", d.Client.ReconnectDelays)
	v.SetDefault("client.invoke_timeout", d.Client.InvokeTimeout)
	v.SetDefault("client.poll_interval", d.Client.PollInterval)
	v.SetDefault("client.toast_duration", d.Client.ToastDuration)
	v.SetDefault("client.buffer_capacity", d.Client.BufferCapacity)

	v.SetDefault("log.level", string(d.Log.Level))
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("log.output_paths", d.Log.OutputPaths)
}
