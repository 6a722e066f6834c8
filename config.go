package repricer

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RateWindow is the runtime budget configuration for a Scheduler.
type RateWindow struct {
	Capacity int64
	Window   time.Duration
	// PerTier partitions capacity per priority tier. Tiers without an
	// entry draw from the shared Capacity pool; nil means one shared pool
	// for everything.
	PerTier map[Priority]int64
}

// Config is the top-level repricer configuration.
type Config struct {
	RateWindow  RateWindowConfig  `yaml:"rate_window"`
	Probe       ProbeConfig       `yaml:"probe"`
	Cycle       CycleConfig       `yaml:"cycle"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
}

// RateWindowConfig configures the scheduler's call budget.
type RateWindowConfig struct {
	Capacity int64            `yaml:"capacity"`
	WindowMs int64            `yaml:"window_ms"`
	PerTier  map[string]int64 `yaml:"per_tier"`
	// MaxWaitMs bounds admission waits. Zero means wait indefinitely.
	MaxWaitMs int64 `yaml:"max_wait_ms"`
}

// ProbeConfig configures the Dip-Peek-Peak protocol.
type ProbeConfig struct {
	DipFactor string `yaml:"dip_factor"`
	WaitMs    int64  `yaml:"wait_ms"`
}

// CycleConfig configures the recurring-task orchestrator.
type CycleConfig struct {
	JitterMaxMs         int64 `yaml:"jitter_max_ms"`
	RepricingIntervalMs int64 `yaml:"repricing_interval_ms"`
	OrderSyncIntervalMs int64 `yaml:"order_sync_interval_ms"`
}

// MarketplaceConfig configures the outbound HTTP adapter.
type MarketplaceConfig struct {
	BaseURL   string `yaml:"base_url"`
	AuthToken string `yaml:"auth_token"`
	TimeoutMs int64  `yaml:"timeout_ms"`
}

var tierNames = map[string]Priority{
	"normal":   PriorityNormal,
	"high":     PriorityHigh,
	"critical": PriorityCritical,
}

// LoadConfig reads and parses a YAML config file. Environment variables in
// the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("repricer: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("repricer: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if c.RateWindow.Capacity <= 0 {
		return fmt.Errorf("repricer: config: rate_window.capacity must be positive")
	}
	if c.RateWindow.WindowMs <= 0 {
		return fmt.Errorf("repricer: config: rate_window.window_ms must be positive")
	}
	for name := range c.RateWindow.PerTier {
		if _, ok := tierNames[name]; !ok {
			return fmt.Errorf("repricer: config: rate_window.per_tier: unknown tier %q", name)
		}
	}
	if c.Probe.DipFactor != "" {
		f, err := decimal.NewFromString(c.Probe.DipFactor)
		if err != nil {
			return fmt.Errorf("repricer: config: probe.dip_factor: %w", err)
		}
		if f.LessThanOrEqual(decimal.Zero) || f.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("repricer: config: probe.dip_factor must be in (0, 1)")
		}
	}
	if c.Marketplace.BaseURL == "" {
		return fmt.Errorf("repricer: config: marketplace.base_url is required")
	}
	if c.Marketplace.AuthToken == "" {
		return fmt.Errorf("repricer: config: marketplace.auth_token is required")
	}
	return nil
}

// Window converts the YAML fields into the scheduler's runtime form.
func (c RateWindowConfig) Window() RateWindow {
	rw := RateWindow{
		Capacity: c.Capacity,
		Window:   time.Duration(c.WindowMs) * time.Millisecond,
	}
	if len(c.PerTier) > 0 {
		rw.PerTier = make(map[Priority]int64, len(c.PerTier))
		for name, limit := range c.PerTier {
			if p, ok := tierNames[name]; ok {
				rw.PerTier[p] = limit
			}
		}
	}
	return rw
}

// Wait returns the probe's waiting-phase duration.
func (c ProbeConfig) Wait() time.Duration {
	if c.WaitMs <= 0 {
		return defaultProbeWait
	}
	return time.Duration(c.WaitMs) * time.Millisecond
}

// Factor returns the dip factor as a decimal. Validate must have passed.
func (c ProbeConfig) Factor() decimal.Decimal {
	if c.DipFactor == "" {
		return decimal.RequireFromString(defaultDipFactor)
	}
	return decimal.RequireFromString(c.DipFactor)
}
