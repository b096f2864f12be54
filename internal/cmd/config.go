package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/robert1948/localstorm-sub000/internal/config"
	"github.com/robert1948/localstorm-sub000/internal/output"
)

// defaultConfigYAML is the template config init writes. Values mirror the
// loader defaults, so the generated file changes nothing until edited.
const defaultConfigYAML = `# stormguard configuration.
#
# Every key can also be set through the environment as
# STORMGUARD_<SECTION>_<KEY>, e.g. STORMGUARD_SERVER_PORT=9090.
# Environment variables win over this file.

server:
  host: 0.0.0.0
  port: 8080
  read_timeout: 15s
  write_timeout: 15s
  idle_timeout: 60s
  shutdown_timeout: 10s
  # Admitted requests are proxied here. Leave empty to run standalone
  # (admitted requests answer 404), which is useful for trying out policies.
  upstream_url: ""
  # Enables the /guard admin API when set. Keep it secret.
  admin_token: ""

guard:
  # Per-category rate limits. Unknown categories fall back to general.
  policies:
    ai:
      calls_per_minute: 10
      calls_per_hour: 100
    authentication:
      calls_per_minute: 10
      calls_per_hour: 100
    registration:
      calls_per_minute: 5
      calls_per_hour: 20
    general:
      calls_per_minute: 60
      calls_per_hour: 1000
  ddos:
    # More than burst_threshold requests inside burst_window blocks the
    # client. Repeat offenders double the duration up to max_block_duration.
    burst_threshold: 50
    burst_window: 10s
    base_block_duration: 1m
    max_block_duration: 5m
    # Clients whose reputation falls to this score or below are blocked.
    reputation_threshold: -50
    violation_memory: 5m
  # Paths admitted without accounting.
  bypass_paths:
    - /health
    - /health/live
    - /health/ready
    - /version
    - /metrics
  # Proxies whose X-Forwarded-For / X-Real-IP headers are trusted (CIDRs).
  trusted_proxies: []
  # Clients never limited or blocked (CIDRs).
  allowlist: []
  idle_ttl: 1h
  sweep_interval: 1m
  max_clients: 100000

store:
  # Durable audit trail of violations, blocks and unblocks (libSQL).
  enabled: false
  driver: libsql
  # Local database file; defaults under the user cache dir when empty.
  path: ""
  # Remote database, e.g. libsql://stormguard-audit.turso.io.
  url: ""
  auth_token: ""
  queue_size: 1024
  writes_per_second: 200

stats:
  redis:
    # Mirrors decision counters and block events into Redis.
    enabled: false
    addr: localhost:6379
    password: ""
    db: 0
    key_prefix: stormguard
    ttl: 24h

logging:
  level: info # debug, info, warn or error
  encoding: json # json or console

metrics:
  enabled: true
`

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage stormguard configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a commented default config file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and print the effective policies",
	Long: `Load the configuration the same way serve does, report problems, and
print the rate limit policies that would apply. Keys the loader does not
understand (typos, misplaced sections) are listed as warnings.`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := "stormguard.yaml"
	if len(args) == 1 {
		path = args[0]
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if file := config.UsedFile(); file != "" {
		unknown, err := unknownConfigKeys(file)
		if err != nil {
			return err
		}
		for _, key := range unknown {
			fmt.Printf("warning: unknown key %q is ignored\n", key)
		}
		fmt.Printf("%s: valid\n", file)
	} else {
		fmt.Println("No config file found; defaults and environment are valid.")
	}

	fmt.Println(output.PolicyTable(cfg.Guard))
	return nil
}

// unknownConfigKeys parses the YAML file and returns dotted keys the loader
// has no mapping for. Viper ignores them silently, which turns typos into
// policies that never apply.
func unknownConfigKeys(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var unknown []string
	collectUnknownKeys("", root, &unknown)
	sort.Strings(unknown)
	return unknown, nil
}

func collectUnknownKeys(prefix string, node map[string]any, unknown *[]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			collectUnknownKeys(key, child, unknown)
			continue
		}
		if !knownConfigKey(key) {
			*unknown = append(*unknown, key)
		}
	}
}

// knownConfigKey reports whether the loader understands the dotted key.
// Policy categories are free-form, so guard.policies.* is matched by shape.
func knownConfigKey(key string) bool {
	if configKeys[key] {
		return true
	}
	rest, ok := strings.CutPrefix(key, "guard.policies.")
	if !ok {
		return false
	}
	parts := strings.Split(rest, ".")
	return len(parts) == 2 && (parts[1] == "calls_per_minute" || parts[1] == "calls_per_hour")
}

var configKeys = map[string]bool{
	"server.host":             true,
	"server.port":             true,
	"server.read_timeout":     true,
	"server.write_timeout":    true,
	"server.idle_timeout":     true,
	"server.shutdown_timeout": true,
	"server.upstream_url":     true,
	"server.admin_token":      true,

	"guard.ddos.burst_threshold":      true,
	"guard.ddos.burst_window":         true,
	"guard.ddos.base_block_duration":  true,
	"guard.ddos.max_block_duration":   true,
	"guard.ddos.reputation_threshold": true,
	"guard.ddos.violation_memory":     true,
	"guard.bypass_paths":              true,
	"guard.trusted_proxies":           true,
	"guard.allowlist":                 true,
	"guard.idle_ttl":                  true,
	"guard.sweep_interval":            true,
	"guard.max_clients":               true,

	"store.enabled":           true,
	"store.driver":            true,
	"store.path":              true,
	"store.url":               true,
	"store.auth_token":        true,
	"store.queue_size":        true,
	"store.writes_per_second": true,

	"stats.redis.enabled":    true,
	"stats.redis.addr":       true,
	"stats.redis.password":   true,
	"stats.redis.db":         true,
	"stats.redis.key_prefix": true,
	"stats.redis.ttl":        true,

	"logging.level":    true,
	"logging.encoding": true,

	"metrics.enabled": true,
}
