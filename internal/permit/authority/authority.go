// Package authority issues and verifies signed quota permits.
package authority

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pconfig "github.com/aifuun/yorutsuke-v2-sub006/internal/permit/config"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/metrics"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	dErrors "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain-errors"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/audit"
)

const maxValidityDays = 365

// Authority maps subjects to tiers and signs permits with the keyring's
// active key.
type Authority struct {
	tiers   *pconfig.Config
	keys    *Keyring
	clock   func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Authority)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Authority) {
		a.logger = logger
	}
}

func WithClock(clock func() time.Time) Option {
	return func(a *Authority) {
		a.clock = clock
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authority) {
		a.metrics = m
	}
}

func New(tiers *pconfig.Config, keys *Keyring, opts ...Option) (*Authority, error) {
	if tiers == nil {
		return nil, fmt.Errorf("tier config is required")
	}
	if keys == nil {
		return nil, fmt.Errorf("keyring is required")
	}
	a := &Authority{
		tiers:  tiers,
		keys:   keys,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Issue signs a fresh permit for subject. validityDays overrides the tier's
// default when non-nil and must be positive.
func (a *Authority) Issue(ctx context.Context, subject string, validityDays *int) (*models.QuotaPermit, error) {
	subjectID, err := id.ParseSubjectID(subject)
	if err != nil {
		a.metrics.IncrementIssueFailure("invalid_subject")
		return nil, err
	}
	tier, limits, ok := a.tiers.TierFor(subjectID.Namespace())
	if !ok {
		a.metrics.IncrementIssueFailure("invalid_subject")
		audit.Log(ctx, a.logger, audit.EventPermitRejected,
			"subject_id", subjectID.String(),
			"reason", "unknown_namespace",
		)
		return nil, dErrors.New(dErrors.CodeInvalidSubject, fmt.Sprintf("subject namespace %q has no tier", subjectID.Namespace()))
	}

	days := limits.ValidityDays
	if validityDays != nil {
		if *validityDays <= 0 || *validityDays > maxValidityDays {
			a.metrics.IncrementIssueFailure("invalid_validity")
			return nil, dErrors.New(dErrors.CodeInvalidValidity, fmt.Sprintf("validity days must be between 1 and %d", maxValidityDays))
		}
		days = *validityDays
	}

	key, err := a.keys.Active()
	if err != nil {
		a.metrics.IncrementIssueFailure("no_key")
		return nil, err
	}

	// Millisecond precision: the signature covers epoch-ms, and the JSON form
	// must round-trip to the same value.
	now := a.clock().UTC().Truncate(time.Millisecond)
	permit := &models.QuotaPermit{
		SubjectID:  subjectID,
		Tier:       tier,
		TotalLimit: limits.TotalLimit,
		DailyRate:  limits.DailyRate,
		IssuedAt:   now,
		ExpiresAt:  now.Add(time.Duration(days) * 24 * time.Hour),
	}
	sig, err := Sign(permit, key.Secret)
	if err != nil {
		a.metrics.IncrementIssueFailure("sign")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign permit")
	}
	permit.Signature = sig

	a.metrics.IncrementIssued(string(tier))
	audit.Log(ctx, a.logger, audit.EventPermitIssued,
		"subject_id", subjectID.String(),
		"tier", string(tier),
		"key_id", key.ID,
		"expires_at", permit.ExpiresAt,
	)
	return permit, nil
}

// Verify checks permit against the keyring at the authority's current time.
func (a *Authority) Verify(permit *models.QuotaPermit) error {
	if err := a.keys.Verify(permit, a.clock()); err != nil {
		a.metrics.IncrementVerificationFailure()
		return err
	}
	return nil
}
