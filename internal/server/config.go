// Package server provides configuration helpers that define runtime defaults,
// validation, and per-connection limits for the relay service.
package server

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/Tyrowin/presence-relay/internal/relay"
)

// Config holds the server configuration. Fields are read from the
// environment (and an optional .env file) by LoadConfig.
type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080" validate:"min=1,max=65535"`
	LogLevel string `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`

	// AllowedOrigins is a comma separated list; "*" allows every origin.
	AllowedOrigins string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxMessageSize int64         `env:"MAX_MESSAGE_SIZE,default=4096" validate:"min=1"`
	SendBufferSize int           `env:"SEND_BUFFER_SIZE,default=256" validate:"min=1"`
	WriteWait      time.Duration `env:"WRITE_WAIT,default=10s" validate:"gt=0"`

	RateLimitBurst          int           `env:"RATE_LIMIT_BURST,default=5" validate:"min=0"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s" validate:"gt=0"`

	HeartbeatInterval  time.Duration `env:"HEARTBEAT_INTERVAL,default=10s" validate:"gt=0"`
	HeartbeatMaxMissed int           `env:"HEARTBEAT_MAX_MISSED,default=0" validate:"min=0"`

	CloseOnProtocolError bool          `env:"CLOSE_ON_PROTOCOL_ERROR,default=false"`
	EvictSuperseded      bool          `env:"EVICT_SUPERSEDED,default=false"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
}

var validate = validator.New()

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Host:                    "0.0.0.0",
		Port:                    8080,
		LogLevel:                "INFO",
		AllowedOrigins:          "http://localhost:8080",
		MaxMessageSize:          4096,
		SendBufferSize:          256,
		WriteWait:               10 * time.Second,
		RateLimitBurst:          5,
		RateLimitRefillInterval: time.Second,
		HeartbeatInterval:       relay.DefaultHeartbeatInterval,
		ShutdownTimeout:         10 * time.Second,
	}
}

// LoadConfig reads .env if present, then the process environment.
func LoadConfig() (Config, error) {
	// A missing .env file is the normal case in production.
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	cfg = cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Sanitize fills zero values with defaults and normalises the log level.
func (c Config) Sanitize() Config {
	def := DefaultConfig()

	if c.Port == 0 {
		c.Port = def.Port
	}
	c.LogLevel = strings.ToUpper(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = def.SendBufferSize
	}
	if c.WriteWait <= 0 {
		c.WriteWait = def.WriteWait
	}
	if c.RateLimitRefillInterval <= 0 {
		c.RateLimitRefillInterval = def.RateLimitRefillInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}

// Validate checks the configuration against its field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Addr is the listen address built from Host and Port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Origins splits AllowedOrigins into its entries.
func (c Config) Origins() []string {
	return parseOrigins(c.AllowedOrigins)
}

// RelayOptions maps the configuration onto the relay core.
func (c Config) RelayOptions() relay.Options {
	return relay.Options{
		EvictSuperseded: c.EvictSuperseded,
		Session: relay.SessionOptions{
			HeartbeatInterval:  c.HeartbeatInterval,
			HeartbeatMaxMissed: c.HeartbeatMaxMissed,
			RateLimit: relay.RateLimit{
				Burst:    c.RateLimitBurst,
				Interval: c.RateLimitRefillInterval,
			},
			CloseOnProtocolError: c.CloseOnProtocolError,
		},
	}
}

func parseOrigins(origins string) []string {
	if strings.TrimSpace(origins) == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
