package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/models"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	tier, limits, ok := cfg.TierFor("guest")
	require.True(t, ok)
	assert.Equal(t, models.TierGuest, tier)
	assert.Equal(t, 30, limits.TotalLimit)

	_, _, ok = cfg.TierFor("admin")
	assert.False(t, ok)
}

func TestParse(t *testing.T) {
	t.Run("valid table", func(t *testing.T) {
		cfg, err := Parse([]byte(`
namespaces:
  guest: guest
  user: standard
tiers:
  guest: {total_limit: 5, daily_rate: 0, validity_days: 1}
  standard: {total_limit: 50, daily_rate: 24, validity_days: 14}
`))
		require.NoError(t, err)
		_, limits, ok := cfg.TierFor("user")
		require.True(t, ok)
		assert.Equal(t, models.TierLimits{TotalLimit: 50, DailyRate: 24, ValidityDays: 14}, limits)
	})

	t.Run("unknown tier is rejected", func(t *testing.T) {
		_, err := Parse([]byte(`
namespaces: {vip: platinum}
tiers: {}
`))
		assert.ErrorContains(t, err, "unknown tier")
	})

	t.Run("tier without limits is rejected", func(t *testing.T) {
		_, err := Parse([]byte(`
namespaces: {guest: guest}
tiers: {}
`))
		assert.ErrorContains(t, err, "has no limits")
	})

	t.Run("non-positive validity is rejected", func(t *testing.T) {
		_, err := Parse([]byte(`
namespaces: {guest: guest}
tiers:
  guest: {total_limit: 5, daily_rate: 1, validity_days: 0}
`))
		assert.ErrorContains(t, err, "validity_days")
	})
}
