package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/models"
)

// Config maps subject namespaces to tiers and tiers to permit limits.
type Config struct {
	Namespaces map[string]models.Tier              `yaml:"namespaces"`
	Tiers      map[models.Tier]models.TierLimits `yaml:"tiers"`
}

// DefaultConfig returns the built-in tier table.
//
//	guest:    30 total, 10/day (one every 2h24m), 7 day permits
//	standard: 1000 total, 100/day (one every 14m24s), 30 day permits
func DefaultConfig() *Config {
	return &Config{
		Namespaces: map[string]models.Tier{
			"guest": models.TierGuest,
			"user":  models.TierStandard,
		},
		Tiers: map[models.Tier]models.TierLimits{
			models.TierGuest:    {TotalLimit: 30, DailyRate: 10, ValidityDays: 7},
			models.TierStandard: {TotalLimit: 1000, DailyRate: 100, ValidityDays: 30},
		},
	}
}

// LoadFile reads a YAML tier table. An empty path returns DefaultConfig.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tier config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML tier table.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse tier config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects tables that would let issuance produce unusable permits.
func (c *Config) Validate() error {
	if len(c.Namespaces) == 0 {
		return fmt.Errorf("tier config: at least one namespace is required")
	}
	for ns, tier := range c.Namespaces {
		if !tier.IsValid() {
			return fmt.Errorf("tier config: namespace %q maps to unknown tier %q", ns, tier)
		}
		limits, ok := c.Tiers[tier]
		if !ok {
			return fmt.Errorf("tier config: tier %q has no limits", tier)
		}
		if limits.TotalLimit <= 0 {
			return fmt.Errorf("tier config: tier %q total_limit must be positive", tier)
		}
		if limits.DailyRate < 0 {
			return fmt.Errorf("tier config: tier %q daily_rate cannot be negative", tier)
		}
		if limits.ValidityDays <= 0 {
			return fmt.Errorf("tier config: tier %q validity_days must be positive", tier)
		}
	}
	return nil
}

// TierFor resolves a namespace to its tier and limits.
func (c *Config) TierFor(namespace string) (models.Tier, models.TierLimits, bool) {
	tier, ok := c.Namespaces[namespace]
	if !ok {
		return "", models.TierLimits{}, false
	}
	limits, ok := c.Tiers[tier]
	return tier, limits, ok
}
