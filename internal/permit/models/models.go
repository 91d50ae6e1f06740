package models

import (
	"time"

	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	dErrors "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain-errors"
)

const millisPerDay = int64(24 * time.Hour / time.Millisecond)

// Tier is the quota tier a subject's namespace maps to.
type Tier string

const (
	// TierGuest: anonymous device subjects ("guest-...").
	TierGuest Tier = "guest"
	// TierStandard: registered user subjects ("user-...").
	TierStandard Tier = "standard"
)

// IsValid checks if the tier is one of the supported enum values.
func (t Tier) IsValid() bool {
	switch t {
	case TierGuest, TierStandard:
		return true
	}
	return false
}

// TierLimits is the permit shape issued for a tier.
type TierLimits struct {
	TotalLimit   int `json:"totalLimit" yaml:"total_limit"`
	DailyRate    int `json:"dailyRate" yaml:"daily_rate"` // 0 disables rate spacing
	ValidityDays int `json:"validityDays" yaml:"validity_days"`
}

// QuotaPermit is a signed capability asserting a subject's quota. It is never
// mutated after issuance; a refresh replaces it wholesale.
type QuotaPermit struct {
	SubjectID  id.SubjectID `json:"subjectId"`
	Tier       Tier         `json:"tier"`
	TotalLimit int          `json:"totalLimit"`
	DailyRate  int          `json:"dailyRate"`
	IssuedAt   time.Time    `json:"issuedAt"`
	ExpiresAt  time.Time    `json:"expiresAt"`
	Signature  string       `json:"signature"`
}

// IsExpired reports whether the permit is past its expiry. A permit expiring
// exactly at now is still valid.
func (p *QuotaPermit) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// ConsumptionInterval is the minimum spacing between two consumptions,
// 86,400,000ms / dailyRate in whole milliseconds. Zero when unlimited.
func (p *QuotaPermit) ConsumptionInterval() time.Duration {
	if p.DailyRate <= 0 {
		return 0
	}
	return time.Duration(millisPerDay/int64(p.DailyRate)) * time.Millisecond
}

// Validate checks structural integrity before a signature is even considered.
// Malformed permits are integrity errors, never coerced.
func (p *QuotaPermit) Validate() error {
	if p.SubjectID.IsNil() {
		return dErrors.New(dErrors.CodeIntegrity, "permit subject is missing")
	}
	if !p.Tier.IsValid() {
		return dErrors.New(dErrors.CodeIntegrity, "permit tier is invalid")
	}
	if p.TotalLimit < 0 || p.DailyRate < 0 {
		return dErrors.New(dErrors.CodeIntegrity, "permit limits cannot be negative")
	}
	if p.IssuedAt.IsZero() || p.ExpiresAt.IsZero() || !p.ExpiresAt.After(p.IssuedAt) {
		return dErrors.New(dErrors.CodeIntegrity, "permit validity window is invalid")
	}
	if p.Signature == "" {
		return dErrors.New(dErrors.CodeIntegrity, "permit is unsigned")
	}
	return nil
}

// Grant is what the authority hands back on issuance: the permit plus the
// consumption count it has on record for the subject.
type Grant struct {
	Permit        QuotaPermit `json:"permit"`
	ReportedUsage int         `json:"reportedUsage"`
}

// LocalUsage is the client's running consumption against the current permit.
// cumulativeCount < totalLimit is an admission gate; a refresh may reset it.
type LocalUsage struct {
	Permit          QuotaPermit `json:"permit"`
	CumulativeCount int         `json:"cumulativeCount"`
	LastConsumedAt  time.Time   `json:"lastConsumedAt"` // zero when nothing consumed yet
}

// Remaining returns how many consumptions the total limit still allows.
func (u *LocalUsage) Remaining() int {
	if r := u.Permit.TotalLimit - u.CumulativeCount; r > 0 {
		return r
	}
	return 0
}
