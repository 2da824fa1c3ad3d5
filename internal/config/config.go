package config

import "time"

// DefaultJWTSecret is the placeholder secret written to fresh config files.
const DefaultJWTSecret = "change-me"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	JWT    JWTConfig    `mapstructure:"jwt" yaml:"jwt"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
	WS     WSConfig     `mapstructure:"ws" yaml:"ws"`
	Push   PushConfig   `mapstructure:"push" yaml:"push"`
	Fanout FanoutConfig `mapstructure:"fanout" yaml:"fanout"`
}

// JWTConfig configures bearer token validation.
type JWTConfig struct {
	Secret   string        `mapstructure:"secret" yaml:"secret"`
	Issuer   string        `mapstructure:"issuer" yaml:"issuer"`
	Audience string        `mapstructure:"audience" yaml:"audience"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// LogConfig selects logger level and output format (console or json).
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// WSConfig holds messaging channel limits.
type WSConfig struct {
	MaxMessageBytes   int64   `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SendRatePerSecond float64 `mapstructure:"send_rate_per_second" yaml:"send_rate_per_second"`
	SendBurst         int     `mapstructure:"send_burst" yaml:"send_burst"`
	OutboundBuffer    int     `mapstructure:"outbound_buffer" yaml:"outbound_buffer"`
}

// PushConfig configures the push notification transport.
type PushConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	CredentialsFile string        `mapstructure:"credentials_file" yaml:"credentials_file"`
	ProjectID       string        `mapstructure:"project_id" yaml:"project_id"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	DeeplinkBase    string        `mapstructure:"deeplink_base" yaml:"deeplink_base"`
	BreakerFailures uint32        `mapstructure:"breaker_failures" yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout" yaml:"breaker_timeout"`
}

// FanoutConfig enables the Redis relay for multi-instance room fan-out.
// An empty RedisAddr keeps fan-out in-process.
type FanoutConfig struct {
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
	ChannelPrefix string `mapstructure:"channel_prefix" yaml:"channel_prefix"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "campus-chat.db",
		JWT: JWTConfig{
			Secret: DefaultJWTSecret,
			TTL:    24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		WS: WSConfig{
			MaxMessageBytes:   64 << 10,
			SendRatePerSecond: 10,
			SendBurst:         20,
			OutboundBuffer:    32,
		},
		Push: PushConfig{
			Timeout:         10 * time.Second,
			DeeplinkBase:    "campusmarket://",
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Fanout: FanoutConfig{
			ChannelPrefix: "campus-chat:",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWT.Secret != "" {
		c.JWT.Secret = other.JWT.Secret
	}
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
}
