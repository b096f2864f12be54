// Package config provides centralized configuration management for
// stormguard. Configuration merges three layers in ascending precedence:
// built-in defaults, an optional YAML file, and STORMGUARD_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/robert1948/localstorm-sub000/internal/guard"
)

// envPrefix namespaces environment overrides, e.g. STORMGUARD_SERVER_PORT.
const envPrefix = "STORMGUARD"

var (
	// appConfig holds the most recently loaded configuration.
	appConfig *Config
	// usedFile is the config file the last Load actually read, if any.
	usedFile string
	configMu sync.RWMutex
)

// Load builds the configuration. An empty file argument searches the usual
// locations (working directory, ./config, the user config dir and
// /etc/stormguard) and tolerates absence; an explicit file must exist.
//
// Safe to call multiple times, e.g. for config reload.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("stormguard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "stormguard"))
		}
		v.AddConfigPath("/etc/stormguard")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No file anywhere on the search path: defaults plus env is fine.
	}
	used := v.ConfigFileUsed()

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	setConfig(cfg, used)
	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe).
// It is nil before the first successful Load.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// UsedFile returns the path of the config file the last Load read, or ""
// when the configuration came from defaults and environment alone.
func UsedFile() string {
	configMu.RLock()
	defer configMu.RUnlock()
	return usedFile
}

// setConfig updates the current configuration (thread-safe).
func setConfig(cfg *Config, file string) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
	usedFile = file
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.upstream_url", "")
	v.SetDefault("server.admin_token", "")

	gd := guard.DefaultConfig()
	for cat, pol := range gd.Policies {
		v.SetDefault(fmt.Sprintf("guard.policies.%s.calls_per_minute", cat), pol.CallsPerMinute)
		v.SetDefault(fmt.Sprintf("guard.policies.%s.calls_per_hour", cat), pol.CallsPerHour)
	}
	v.SetDefault("guard.ddos.burst_threshold", gd.DDoS.BurstThreshold)
	v.SetDefault("guard.ddos.burst_window", gd.DDoS.BurstWindow.String())
	v.SetDefault("guard.ddos.base_block_duration", gd.DDoS.BaseBlockDuration.String())
	v.SetDefault("guard.ddos.max_block_duration", gd.DDoS.MaxBlockDuration.String())
	v.SetDefault("guard.ddos.reputation_threshold", gd.DDoS.ReputationThreshold)
	v.SetDefault("guard.ddos.violation_memory", gd.DDoS.ViolationMemory.String())
	v.SetDefault("guard.bypass_paths", gd.BypassPaths)
	v.SetDefault("guard.trusted_proxies", gd.TrustedProxies)
	v.SetDefault("guard.allowlist", gd.Allowlist)
	v.SetDefault("guard.idle_ttl", gd.IdleTTL.String())
	v.SetDefault("guard.sweep_interval", gd.SweepInterval.String())
	v.SetDefault("guard.max_clients", gd.MaxClients)

	v.SetDefault("store.enabled", false)
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")
	v.SetDefault("store.queue_size", 1024)
	v.SetDefault("store.writes_per_second", 200)

	v.SetDefault("stats.redis.enabled", false)
	v.SetDefault("stats.redis.addr", "localhost:6379")
	v.SetDefault("stats.redis.password", "")
	v.SetDefault("stats.redis.db", 0)
	v.SetDefault("stats.redis.key_prefix", "stormguard")
	v.SetDefault("stats.redis.ttl", "24h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "json")

	v.SetDefault("metrics.enabled", true)
}
