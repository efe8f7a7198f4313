package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.Origins())
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Zero(t, cfg.HeartbeatMaxMissed)
	assert.False(t, cfg.CloseOnProtocolError)
	assert.False(t, cfg.EvictSuperseded)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, https://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("HEARTBEAT_INTERVAL", "250ms")
	t.Setenv("HEARTBEAT_MAX_MISSED", "3")
	t.Setenv("CLOSE_ON_PROTOCOL_ERROR", "true")
	t.Setenv("EVICT_SUPERSEDED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, []string{"http://a.example", "https://b.example"}, cfg.Origins())
	assert.Equal(t, int64(1024), cfg.MaxMessageSize)
	assert.Equal(t, 10, cfg.RateLimitBurst)
	assert.Equal(t, 250*time.Millisecond, cfg.HeartbeatInterval)
	assert.Equal(t, 3, cfg.HeartbeatMaxMissed)
	assert.True(t, cfg.CloseOnProtocolError)
	assert.True(t, cfg.EvictSuperseded)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "port out of range", key: "PORT", value: "70000"},
		{name: "unknown log level", key: "LOG_LEVEL", value: "verbose"},
		{name: "negative burst", key: "RATE_LIMIT_BURST", value: "-1"},
		{name: "negative missed probes", key: "HEARTBEAT_MAX_MISSED", value: "-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestConfig_Sanitize(t *testing.T) {
	cfg := Config{LogLevel: " warn "}.Sanitize()
	def := DefaultConfig()

	assert.Equal(t, "WARN", cfg.LogLevel)
	assert.Equal(t, def.Port, cfg.Port)
	assert.Equal(t, def.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, def.SendBufferSize, cfg.SendBufferSize)
	assert.Equal(t, def.WriteWait, cfg.WriteWait)
	assert.Equal(t, def.HeartbeatInterval, cfg.HeartbeatInterval)
	assert.Equal(t, def.ShutdownTimeout, cfg.ShutdownTimeout)
	require.NoError(t, cfg.Validate())
}

func TestConfig_RelayOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatMaxMissed = 4
	cfg.EvictSuperseded = true
	cfg.CloseOnProtocolError = true

	opts := cfg.RelayOptions()

	assert.True(t, opts.EvictSuperseded)
	assert.True(t, opts.Session.CloseOnProtocolError)
	assert.Equal(t, cfg.HeartbeatInterval, opts.Session.HeartbeatInterval)
	assert.Equal(t, 4, opts.Session.HeartbeatMaxMissed)
	assert.Equal(t, cfg.RateLimitBurst, opts.Session.RateLimit.Burst)
	assert.Equal(t, cfg.RateLimitRefillInterval, opts.Session.RateLimit.Interval)
}

func TestParseOrigins(t *testing.T) {
	assert.Nil(t, parseOrigins("  "))
	assert.Equal(t, []string{"*"}, parseOrigins("*"))
	assert.Equal(t, []string{"http://a", "http://b"}, parseOrigins("http://a ,http://b"))
}
