// Package cache holds the client's current permit and consumption count and
// gates each upload through admission.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/admission"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/metrics"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	dErrors "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain-errors"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/audit"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/sentinel"
)

// Issuer obtains a fresh grant from the signature authority. Retries of one
// refresh reuse the same intent so the authority can deduplicate them.
type Issuer interface {
	Issue(ctx context.Context, subject id.SubjectID, intent id.IntentID) (*models.Grant, error)
}

// Verifier checks a permit's structure and signature.
type Verifier interface {
	Verify(permit *models.QuotaPermit, now time.Time) error
}

type UsageStore interface {
	Load(ctx context.Context, subject id.SubjectID) (*models.LocalUsage, error)
	Save(ctx context.Context, usage *models.LocalUsage) error
}

type Cache struct {
	issuer    Issuer
	verifier  Verifier
	store     UsageStore
	clock     func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
	onRefresh func(context.Context, *models.LocalUsage)

	mu    sync.Mutex // serializes read-modify-write on the store
	group singleflight.Group
}

type Option func(*Cache)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func WithClock(clock func() time.Time) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithOnRefresh registers fn to run after every successful refresh, whether
// admission or a caller triggered it.
func WithOnRefresh(fn func(ctx context.Context, usage *models.LocalUsage)) Option {
	return func(c *Cache) {
		c.onRefresh = fn
	}
}

func New(issuer Issuer, verifier Verifier, store UsageStore, opts ...Option) (*Cache, error) {
	if issuer == nil {
		return nil, fmt.Errorf("permit issuer is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("permit verifier is required")
	}
	if store == nil {
		return nil, fmt.Errorf("usage store is required")
	}
	c := &Cache{
		issuer:   issuer,
		verifier: verifier,
		store:    store,
		clock:    time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Admit decides whether subject may consume one unit now. A missing, expired
// or untrusted local permit is refreshed first; a valid one never is.
func (c *Cache) Admit(ctx context.Context, subject id.SubjectID) (admission.Decision, error) {
	usage, err := c.current(ctx, subject)
	if err != nil {
		return admission.Decision{}, err
	}
	decision := admission.CanConsume(usage, c.clock())
	if !decision.Allowed {
		c.metrics.IncrementDenial(string(decision.Reason))
		if decision.Reason == admission.ReasonQuotaExceeded {
			audit.Log(ctx, c.logger, audit.EventQuotaExhausted,
				"subject_id", subject.String(),
				"total_limit", usage.Permit.TotalLimit,
			)
		}
	}
	return decision, nil
}

// RecordConsumption charges one unit against subject's current permit.
func (c *Cache) RecordConsumption(ctx context.Context, subject id.SubjectID) (*models.LocalUsage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	usage, err := c.store.Load(ctx, subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "consumption recorded without a permit")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load permit usage")
	}
	usage.CumulativeCount++
	usage.LastConsumedAt = c.clock()
	if err := c.store.Save(ctx, usage); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save permit usage")
	}
	return usage, nil
}

// Refresh replaces the permit with a newly issued one and resets the count to
// what the authority reports. Concurrent refreshes for one subject share a
// single issuance.
func (c *Cache) Refresh(ctx context.Context, subject id.SubjectID) (*models.LocalUsage, error) {
	v, err, _ := c.group.Do(subject.String(), func() (any, error) {
		return c.refresh(ctx, subject)
	})
	if err != nil {
		return nil, err
	}
	usage := *v.(*models.LocalUsage)
	if c.onRefresh != nil {
		fresh := usage
		c.onRefresh(ctx, &fresh)
	}
	return &usage, nil
}

// Usage returns the stored usage without refreshing.
func (c *Cache) Usage(ctx context.Context, subject id.SubjectID) (*models.LocalUsage, error) {
	usage, err := c.store.Load(ctx, subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no permit cached for subject")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load permit usage")
	}
	return usage, nil
}

func (c *Cache) current(ctx context.Context, subject id.SubjectID) (*models.LocalUsage, error) {
	usage, err := c.store.Load(ctx, subject)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return c.Refresh(ctx, subject)
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load permit usage")
	}

	now := c.clock()
	if verr := c.verifier.Verify(&usage.Permit, now); verr != nil {
		c.metrics.IncrementVerificationFailure()
		c.logger.WarnContext(ctx, "cached permit failed verification, refreshing",
			"subject_id", subject.String(),
			"error", verr,
		)
		return c.Refresh(ctx, subject)
	}
	if usage.Permit.IsExpired(now) {
		return c.Refresh(ctx, subject)
	}
	return usage, nil
}

func (c *Cache) refresh(ctx context.Context, subject id.SubjectID) (*models.LocalUsage, error) {
	grant, err := c.issuer.Issue(ctx, subject, id.NewIntentID())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to obtain permit")
	}
	if grant.Permit.SubjectID != subject {
		c.metrics.IncrementVerificationFailure()
		return nil, dErrors.New(dErrors.CodeIntegrity, "issued permit names a different subject")
	}
	now := c.clock()
	if err := c.verifier.Verify(&grant.Permit, now); err != nil {
		c.metrics.IncrementVerificationFailure()
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	usage := &models.LocalUsage{
		Permit:          grant.Permit,
		CumulativeCount: grant.ReportedUsage,
	}
	// Keep rate spacing across permit replacement.
	if prev, err := c.store.Load(ctx, subject); err == nil {
		usage.LastConsumedAt = prev.LastConsumedAt
	}
	if err := c.store.Save(ctx, usage); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save permit usage")
	}

	c.metrics.IncrementRefresh()
	audit.Log(ctx, c.logger, audit.EventPermitRefreshed,
		"subject_id", subject.String(),
		"tier", string(grant.Permit.Tier),
		"reported_usage", grant.ReportedUsage,
		"expires_at", grant.Permit.ExpiresAt,
	)
	return usage, nil
}
