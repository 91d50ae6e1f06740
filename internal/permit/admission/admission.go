// Package admission decides whether a subject may consume one unit of quota.
package admission

import (
	"time"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/models"
)

// Reason names why admission was denied.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonQuotaExceeded Reason = "quota_exceeded"
	ReasonRateLimited   Reason = "rate_limited"
	ReasonExpired       Reason = "expired"
)

// Decision is the outcome of an admission check. RetryAfter is set only for
// rate_limited.
type Decision struct {
	Allowed    bool
	Reason     Reason
	RetryAfter time.Duration
	Remaining  int
}

// CanConsume evaluates usage at now. It never mutates usage.
//
// The total limit is checked first so an exhausted permit reports
// quota_exceeded no matter how much time has passed; expiry comes next, then
// the rate window. A consumption is rate limited while
// now - lastConsumedAt < interval; at exactly interval it is allowed.
func CanConsume(usage *models.LocalUsage, now time.Time) Decision {
	if usage == nil {
		return Decision{Reason: ReasonExpired}
	}
	p := &usage.Permit
	remaining := usage.Remaining()

	if usage.CumulativeCount >= p.TotalLimit {
		return Decision{Reason: ReasonQuotaExceeded}
	}
	if p.IsExpired(now) {
		return Decision{Reason: ReasonExpired, Remaining: remaining}
	}
	if interval := p.ConsumptionInterval(); interval > 0 && !usage.LastConsumedAt.IsZero() {
		if elapsed := now.Sub(usage.LastConsumedAt); elapsed < interval {
			return Decision{Reason: ReasonRateLimited, RetryAfter: interval - elapsed, Remaining: remaining}
		}
	}
	return Decision{Allowed: true, Remaining: remaining}
}
