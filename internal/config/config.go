package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robert1948/localstorm-sub000/internal/guard"
)

// Config is the complete application configuration: the HTTP front door, the
// admission engine, the audit store and the stats sinks.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Guard   guard.Config  `mapstructure:"guard" yaml:"guard"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Stats   StatsConfig   `mapstructure:"stats" yaml:"stats"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// UpstreamURL is the API the gateway fronts. Admitted requests are
	// proxied there; empty runs the server in standalone mode, where
	// non-admin paths get a 404 after admission control.
	UpstreamURL string `mapstructure:"upstream_url" yaml:"upstream_url"`

	// AdminToken gates the /guard/* inspection endpoints. Empty disables
	// them entirely.
	AdminToken string `mapstructure:"admin_token" yaml:"admin_token"`
}

// Addr returns the host:port the server binds to.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// StoreConfig contains the audit-trail database configuration (libsql,
// local file or remote Turso URL).
type StoreConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Driver    string `mapstructure:"driver" yaml:"driver"`
	Path      string `mapstructure:"path" yaml:"path"`
	URL       string `mapstructure:"url" yaml:"url"`
	AuthToken string `mapstructure:"auth_token" yaml:"auth_token"`

	// QueueSize bounds the async writer's buffer; events beyond it are
	// dropped and counted rather than back-pressuring decisions.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`

	// WritesPerSecond caps audit insert throughput.
	WritesPerSecond int `mapstructure:"writes_per_second" yaml:"writes_per_second"`
}

// StatsConfig configures decision statistics sinks.
type StatsConfig struct {
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig configures the optional Redis decision-counter sink.
type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr      string        `mapstructure:"addr" yaml:"addr"`
	Password  string        `mapstructure:"password" yaml:"password"`
	DB        int           `mapstructure:"db" yaml:"db"`
	KeyPrefix string        `mapstructure:"key_prefix" yaml:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level controls the minimum log level: debug, info, warn or error.
	Level string `mapstructure:"level" yaml:"level"`

	// Encoding selects json or console output.
	Encoding string `mapstructure:"encoding" yaml:"encoding"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Validate reports the first problem that would make the configuration
// unusable at startup.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if u := strings.TrimSpace(c.Server.UpstreamURL); u != "" {
		parsed, err := url.Parse(u)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("server.upstream_url %q is not an absolute URL", u)
		}
	}
	if err := c.Guard.Validate(); err != nil {
		return fmt.Errorf("guard: %w", err)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q unknown", c.Logging.Level)
	}
	switch c.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("logging.encoding %q unknown", c.Logging.Encoding)
	}
	if c.Stats.Redis.Enabled && c.Stats.Redis.Addr == "" {
		return fmt.Errorf("stats.redis.enabled requires stats.redis.addr")
	}
	return nil
}

// DefaultStorePath returns the default audit database location under the
// user cache directory, falling back to the working directory.
func DefaultStorePath() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "stormguard", "audit.db")
	}
	return "stormguard-audit.db"
}
