package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/regsync/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	r := &cfg.Registrar
	if r.RequestsPerSecond == 0 {
		r.RequestsPerSecond = 5
	}
	if r.Timeout == 0 {
		r.Timeout = 30 * time.Second
	}
	if r.MaxRetries == 0 {
		r.MaxRetries = 3
	}
	if r.BaseRetryDelay == 0 {
		r.BaseRetryDelay = time.Second
	}
	if r.Currency == "" {
		r.Currency = "USD"
	}

	p := &cfg.Pricing
	if p.MaxAgeHours == 0 {
		p.MaxAgeHours = 24
	}
	if len(p.Tiers) == 0 {
		for _, t := range domain.AllTiers {
			p.Tiers = append(p.Tiers, string(t))
		}
	}
	if p.LockTTL == 0 {
		p.LockTTL = 5 * time.Minute
	}

	if cfg.Reconcile.ItemDelay == 0 {
		cfg.Reconcile.ItemDelay = 500 * time.Millisecond
	}
	if cfg.Reconcile.Concurrency == 0 {
		cfg.Reconcile.Concurrency = 2
	}
}

// Validate checks values defaults cannot repair.
func (c *AppConfig) Validate() error {
	if c.Registrar.RequestsPerSecond < 0 {
		return fmt.Errorf("registrar.requests_per_second must be positive")
	}
	if c.Pricing.MaxAgeHours < 0 {
		return fmt.Errorf("pricing.max_age_hours must not be negative")
	}
	if c.Reconcile.GraceWindow < 0 {
		return fmt.Errorf("reconcile.grace_window must not be negative")
	}
	if _, err := c.PricingTiers(); err != nil {
		return err
	}
	return nil
}

// PricingTiers returns the configured tiers as domain values.
func (c *AppConfig) PricingTiers() ([]domain.Tier, error) {
	tiers := make([]domain.Tier, 0, len(c.Pricing.Tiers))
	for _, s := range c.Pricing.Tiers {
		t, err := domain.ParseTier(s)
		if err != nil {
			return nil, fmt.Errorf("pricing.tiers: %w", err)
		}
		tiers = append(tiers, t)
	}
	return tiers, nil
}
