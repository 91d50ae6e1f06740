package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/models"
)

var issued = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

func usage(total, rate, count int, last time.Time) *models.LocalUsage {
	return &models.LocalUsage{
		Permit: models.QuotaPermit{
			SubjectID:  "guest-dev",
			Tier:       models.TierGuest,
			TotalLimit: total,
			DailyRate:  rate,
			IssuedAt:   issued,
			ExpiresAt:  issued.Add(7 * 24 * time.Hour),
			Signature:  "sig",
		},
		CumulativeCount: count,
		LastConsumedAt:  last,
	}
}

func TestCanConsume(t *testing.T) {
	now := issued.Add(time.Hour)

	t.Run("fresh usage is allowed", func(t *testing.T) {
		d := CanConsume(usage(30, 10, 0, time.Time{}), now)
		assert.True(t, d.Allowed)
		assert.Equal(t, 30, d.Remaining)
	})

	t.Run("nil usage must be refreshed", func(t *testing.T) {
		d := CanConsume(nil, now)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonExpired, d.Reason)
	})

	t.Run("expired permit", func(t *testing.T) {
		u := usage(30, 10, 0, time.Time{})
		assert.True(t, CanConsume(u, u.Permit.ExpiresAt).Allowed)
		d := CanConsume(u, u.Permit.ExpiresAt.Add(time.Millisecond))
		assert.Equal(t, ReasonExpired, d.Reason)
	})

	t.Run("rate window boundaries", func(t *testing.T) {
		// 10/day: 8_640_000ms between consumptions.
		interval := 8_640_000 * time.Millisecond
		u := usage(30, 10, 1, now)

		d := CanConsume(u, now.Add(interval-time.Millisecond))
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonRateLimited, d.Reason)
		assert.Equal(t, time.Millisecond, d.RetryAfter)

		assert.True(t, CanConsume(u, now.Add(interval)).Allowed)
	})

	t.Run("interval uses integer milliseconds", func(t *testing.T) {
		// 86_400_000 / 7 = 12_342_857.14 -> 12_342_857ms
		u := usage(30, 7, 1, now)
		assert.True(t, CanConsume(u, now.Add(12_342_857*time.Millisecond)).Allowed)
		assert.False(t, CanConsume(u, now.Add(12_342_856*time.Millisecond)).Allowed)
	})

	t.Run("zero daily rate disables spacing", func(t *testing.T) {
		u := usage(30, 0, 5, now)
		assert.True(t, CanConsume(u, now).Allowed)
	})

	t.Run("exhausted quota is monotonic", func(t *testing.T) {
		u := usage(3, 10, 3, now)
		for _, elapsed := range []time.Duration{0, time.Hour, 48 * time.Hour, 30 * 24 * time.Hour} {
			d := CanConsume(u, now.Add(elapsed))
			assert.False(t, d.Allowed, "elapsed=%s", elapsed)
			assert.Equal(t, ReasonQuotaExceeded, d.Reason, "elapsed=%s", elapsed)
		}
	})

	t.Run("does not mutate usage", func(t *testing.T) {
		u := usage(30, 10, 2, now)
		before := *u
		CanConsume(u, now.Add(time.Minute))
		assert.Equal(t, before, *u)
	})
}
