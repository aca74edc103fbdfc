package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// Config is the full beacon configuration.
	Config struct {
		Server    ServerConfig    `yaml:"server"`
		Logger    LoggerConfig    `yaml:"logger"`
		WebSocket WebSocketConfig `yaml:"websocket"`
		SSE       SSEConfig       `yaml:"sse"`
		Liveness  LivenessConfig  `yaml:"liveness"`
		Mirror    MirrorConfig    `yaml:"mirror"`
		Metrics   MetricsConfig   `yaml:"metrics"`
	}

	// ServerConfig configures the HTTP listener.
	ServerConfig struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	}

	// LoggerConfig configures structured logging.
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // log file path when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // compress rotated files
		Color      bool   `yaml:"color"`       // colorize console output
		Stacktrace bool   `yaml:"stacktrace"`  // include stacktraces on errors
	}

	// WebSocketConfig configures the duplex channel. Its staleness
	// threshold is deliberately much longer than the SSE one: duplex
	// clients keep the socket open across long idle stretches.
	WebSocketConfig struct {
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"` // server heartbeat to all duplex connections
		EvictInterval     time.Duration `yaml:"evict_interval"`     // stale sweep cadence
		StaleThreshold    time.Duration `yaml:"stale_threshold"`    // inactivity before eviction
		QueueSize         int           `yaml:"queue_size"`         // per-connection outbound queue
		HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	}

	// SSEConfig configures the one-way push stream. Push-stream clients
	// ping every few seconds, so staleness bites fast.
	SSEConfig struct {
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"` // per-connection heartbeat
		PruneInterval     time.Duration `yaml:"prune_interval"`     // stale sweep cadence
		StaleThreshold    time.Duration `yaml:"stale_threshold"`    // inactivity before pruning
		QueueSize         int           `yaml:"queue_size"`
	}

	// LivenessConfig configures presence classification, shared by both
	// transports.
	LivenessConfig struct {
		ActiveWindow time.Duration `yaml:"active_window"` // recency required to count as active
		Tick         time.Duration `yaml:"tick"`          // classification cadence
	}

	// MirrorConfig configures the optional Redis mirror of connection
	// metadata. Inspection only; never a fan-out path.
	MirrorConfig struct {
		Enabled         bool          `yaml:"enabled"`
		Addr            string        `yaml:"addr"`
		Username        string        `yaml:"username"`
		Password        string        `yaml:"password"`
		DB              int           `yaml:"db"`
		Prefix          string        `yaml:"prefix"`
		TTL             time.Duration `yaml:"ttl"`
		RefreshInterval time.Duration `yaml:"refresh_interval"`
	}

	// MetricsConfig configures the prometheus registry.
	MetricsConfig struct {
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}
)

// Load reads a YAML config file with environment variable placeholder
// support. A missing path yields the defaults.
func Load(path string) (*Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		data = resolveEnv(data)
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.setDefaults()
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.WebSocket.HeartbeatInterval == 0 {
		c.WebSocket.HeartbeatInterval = 30 * time.Second
	}
	if c.WebSocket.EvictInterval == 0 {
		c.WebSocket.EvictInterval = 30 * time.Second
	}
	if c.WebSocket.StaleThreshold == 0 {
		c.WebSocket.StaleThreshold = 5 * time.Minute
	}
	if c.WebSocket.HandshakeTimeout == 0 {
		c.WebSocket.HandshakeTimeout = 10 * time.Second
	}
	if c.SSE.HeartbeatInterval == 0 {
		c.SSE.HeartbeatInterval = 3 * time.Second
	}
	if c.SSE.PruneInterval == 0 {
		c.SSE.PruneInterval = 5 * time.Second
	}
	if c.SSE.StaleThreshold == 0 {
		c.SSE.StaleThreshold = 10 * time.Second
	}
	if c.Liveness.ActiveWindow == 0 {
		c.Liveness.ActiveWindow = 3 * time.Second
	}
	if c.Liveness.Tick == 0 {
		c.Liveness.Tick = time.Second
	}
	if c.Mirror.Prefix == "" {
		c.Mirror.Prefix = "beacon"
	}
	if c.Mirror.TTL == 0 {
		c.Mirror.TTL = time.Minute
	}
	if c.Mirror.RefreshInterval == 0 {
		c.Mirror.RefreshInterval = 30 * time.Second
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "beacon"
	}
}

// resolveEnv replaces ${VAR} and ${VAR:default} placeholders in YAML
// content with environment values.
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
