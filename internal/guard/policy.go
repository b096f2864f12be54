package guard

import (
	"fmt"
	"time"
)

// Category groups request paths into a shared rate-limit policy bucket.
type Category string

const (
	CategoryAI           Category = "ai"
	CategoryAuth         Category = "authentication"
	CategoryRegistration Category = "registration"
	CategoryGeneral      Category = "general"
)

// Categories lists every known category in a stable order.
var Categories = []Category{CategoryAI, CategoryAuth, CategoryRegistration, CategoryGeneral}

// RateLimitPolicy caps request volume for one endpoint category across two
// rolling windows. The minute cap is always evaluated before the hour cap.
type RateLimitPolicy struct {
	CallsPerMinute int `mapstructure:"calls_per_minute" yaml:"calls_per_minute"`
	CallsPerHour   int `mapstructure:"calls_per_hour" yaml:"calls_per_hour"`
}

// DDoSConfig holds the process-wide thresholds for burst detection, reputation
// scoring and block escalation. It is read-only after the controller is built.
type DDoSConfig struct {
	// BurstThreshold is the cross-category request count within BurstWindow
	// (including the request being decided) that flags a burst attack.
	BurstThreshold int           `mapstructure:"burst_threshold" yaml:"burst_threshold"`
	BurstWindow    time.Duration `mapstructure:"burst_window" yaml:"burst_window"`

	// Block durations escalate from base to max with the recent violation count.
	BaseBlockDuration time.Duration `mapstructure:"base_block_duration" yaml:"base_block_duration"`
	MaxBlockDuration  time.Duration `mapstructure:"max_block_duration" yaml:"max_block_duration"`

	// ReputationThreshold is the score at or below which a rate violation
	// escalates to a temporary block instead of a plain denial.
	ReputationThreshold int `mapstructure:"reputation_threshold" yaml:"reputation_threshold"`

	// ViolationMemory bounds how long a violation keeps feeding escalation.
	ViolationMemory time.Duration `mapstructure:"violation_memory" yaml:"violation_memory"`
}

// Config carries everything the controller needs that is environment-specific.
// The zero value is not usable; start from DefaultConfig.
type Config struct {
	Policies map[Category]RateLimitPolicy `mapstructure:"policies" yaml:"policies"`
	DDoS     DDoSConfig                   `mapstructure:"ddos" yaml:"ddos"`

	// BypassPaths are exact request paths admitted without any tracking,
	// typically health and metadata probes.
	BypassPaths []string `mapstructure:"bypass_paths" yaml:"bypass_paths"`

	// TrustedProxies lists CIDRs of peers whose forwarding headers are honored.
	// Forwarding headers from any other peer are ignored.
	TrustedProxies []string `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`

	// Allowlist lists CIDRs whose clients are admitted without tracking.
	Allowlist []string `mapstructure:"allowlist" yaml:"allowlist"`

	// IdleTTL is how long a client may stay idle before the sweeper evicts its
	// state. SweepInterval is how often the sweeper runs; zero disables it.
	IdleTTL       time.Duration `mapstructure:"idle_ttl" yaml:"idle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// MaxClients bounds the tracked-client arena. When the cap is hit, the
	// least recently seen client in the new key's shard is evicted.
	MaxClients int `mapstructure:"max_clients" yaml:"max_clients"`
}

// DefaultConfig returns the configuration the engine ships with. Callers
// typically overlay file or environment values on top of it.
func DefaultConfig() Config {
	return Config{
		Policies: map[Category]RateLimitPolicy{
			CategoryAI:           {CallsPerMinute: 10, CallsPerHour: 100},
			CategoryAuth:         {CallsPerMinute: 10, CallsPerHour: 100},
			CategoryRegistration: {CallsPerMinute: 5, CallsPerHour: 20},
			CategoryGeneral:      {CallsPerMinute: 60, CallsPerHour: 1000},
		},
		DDoS: DDoSConfig{
			BurstThreshold:      50,
			BurstWindow:         10 * time.Second,
			BaseBlockDuration:   time.Minute,
			MaxBlockDuration:    5 * time.Minute,
			ReputationThreshold: -50,
			ViolationMemory:     5 * time.Minute,
		},
		BypassPaths: []string{
			"/health", "/health/live", "/health/ready", "/version", "/metrics",
		},
		IdleTTL:       time.Hour,
		SweepInterval: time.Minute,
		MaxClients:    100_000,
	}
}

// Validate reports the first problem that would make the configuration
// unusable. Missing category policies are not an error: lookups fall back to
// the general policy with a logged warning.
func (c Config) Validate() error {
	if _, ok := c.Policies[CategoryGeneral]; !ok {
		return fmt.Errorf("policy for category %q is required", CategoryGeneral)
	}
	for cat, pol := range c.Policies {
		if pol.CallsPerMinute <= 0 || pol.CallsPerHour <= 0 {
			return fmt.Errorf("policy for category %q must have positive limits", cat)
		}
	}
	if c.DDoS.BurstThreshold <= 0 {
		return fmt.Errorf("burst_threshold must be positive")
	}
	if c.DDoS.BurstWindow <= 0 {
		return fmt.Errorf("burst_window must be positive")
	}
	if c.DDoS.BaseBlockDuration <= 0 || c.DDoS.MaxBlockDuration < c.DDoS.BaseBlockDuration {
		return fmt.Errorf("block durations must be positive and max must not be below base")
	}
	if c.DDoS.ViolationMemory <= 0 {
		return fmt.Errorf("violation_memory must be positive")
	}
	if c.IdleTTL <= 0 {
		return fmt.Errorf("idle_ttl must be positive")
	}
	if c.MaxClients <= 0 {
		return fmt.Errorf("max_clients must be positive")
	}
	return nil
}

// policyFor returns the policy for a category, falling back to the general
// policy when the table has no entry. The fallback is deliberate: a missing
// policy must never turn into a denial.
func (c Config) policyFor(cat Category) (RateLimitPolicy, bool) {
	if pol, ok := c.Policies[cat]; ok {
		return pol, true
	}
	return c.Policies[CategoryGeneral], false
}
