package cache

//go:generate mockgen -source=cache.go -destination=mocks/mocks.go -package=mocks Issuer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/admission"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/authority"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/cache/mocks"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/models"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/store"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/platform/config"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	dErrors "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain-errors"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/testutil"
)

const (
	subject = id.SubjectID("guest-device-1")
	secret  = "cache-test-secret"
)

type CacheSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	issuer *mocks.MockIssuer
	store  *store.InMemoryUsageStore
	clock  *testutil.Clock
	cache  *Cache
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.issuer = mocks.NewMockIssuer(s.ctrl)
	s.store = store.NewInMemory()
	s.clock = testutil.NewClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))

	keyring, err := authority.NewKeyring([]config.KeySpec{{ID: "k1", Secret: secret}})
	s.Require().NoError(err)
	s.cache, err = New(s.issuer, keyring, s.store, WithClock(s.clock.Now))
	s.Require().NoError(err)
}

func (s *CacheSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *CacheSuite) grant(total, rate int, reported int) *models.Grant {
	now := s.clock.Now().UTC().Truncate(time.Millisecond)
	p := models.QuotaPermit{
		SubjectID:  subject,
		Tier:       models.TierGuest,
		TotalLimit: total,
		DailyRate:  rate,
		IssuedAt:   now,
		ExpiresAt:  now.Add(7 * 24 * time.Hour),
	}
	sig, err := authority.Sign(&p, []byte(secret))
	s.Require().NoError(err)
	p.Signature = sig
	return &models.Grant{Permit: p, ReportedUsage: reported}
}

func (s *CacheSuite) expectIssue(g *models.Grant) *gomock.Call {
	return s.issuer.EXPECT().Issue(gomock.Any(), subject, gomock.Any()).Return(g, nil)
}

// =============================================================================
// Admission and refresh policy
// =============================================================================

func (s *CacheSuite) TestAdmit() {
	ctx := context.Background()

	s.Run("absent permit is refreshed once, valid permit is reused", func() {
		s.expectIssue(s.grant(30, 0, 0)).Times(1)

		d, err := s.cache.Admit(ctx, subject)
		s.Require().NoError(err)
		s.True(d.Allowed)

		d, err = s.cache.Admit(ctx, subject)
		s.Require().NoError(err)
		s.True(d.Allowed)
	})

	s.Run("expired permit is refreshed", func() {
		usage, err := s.cache.Usage(ctx, subject)
		s.Require().NoError(err)
		s.clock.Set(usage.Permit.ExpiresAt.Add(time.Second))

		s.expectIssue(s.grant(30, 0, 0)).Times(1)
		d, err := s.cache.Admit(ctx, subject)
		s.Require().NoError(err)
		s.True(d.Allowed)
	})

	s.Run("tampered cached permit is replaced", func() {
		usage, err := s.cache.Usage(ctx, subject)
		s.Require().NoError(err)
		usage.Permit.TotalLimit = 1_000_000
		s.Require().NoError(s.store.Save(ctx, usage))

		s.expectIssue(s.grant(30, 0, 0)).Times(1)
		_, err = s.cache.Admit(ctx, subject)
		s.Require().NoError(err)

		usage, err = s.cache.Usage(ctx, subject)
		s.Require().NoError(err)
		s.Equal(30, usage.Permit.TotalLimit)
	})
}

func (s *CacheSuite) TestRateLimited() {
	ctx := context.Background()
	s.expectIssue(s.grant(30, 10, 0))

	_, err := s.cache.Admit(ctx, subject)
	s.Require().NoError(err)
	_, err = s.cache.RecordConsumption(ctx, subject)
	s.Require().NoError(err)

	s.clock.Advance(time.Hour)
	d, err := s.cache.Admit(ctx, subject)
	s.Require().NoError(err)
	s.Equal(admission.ReasonRateLimited, d.Reason)
	s.Equal(8_640_000*time.Millisecond-time.Hour, d.RetryAfter)
}

func (s *CacheSuite) TestQuotaExhaustionThenRefresh() {
	ctx := context.Background()
	s.expectIssue(s.grant(2, 0, 0)).Times(1)

	for range 2 {
		d, err := s.cache.Admit(ctx, subject)
		s.Require().NoError(err)
		s.Require().True(d.Allowed)
		_, err = s.cache.RecordConsumption(ctx, subject)
		s.Require().NoError(err)
	}

	d, err := s.cache.Admit(ctx, subject)
	s.Require().NoError(err)
	s.False(d.Allowed)
	s.Equal(admission.ReasonQuotaExceeded, d.Reason)

	s.expectIssue(s.grant(2, 0, 0)).Times(1)
	usage, err := s.cache.Refresh(ctx, subject)
	s.Require().NoError(err)
	s.Equal(0, usage.CumulativeCount)

	d, err = s.cache.Admit(ctx, subject)
	s.Require().NoError(err)
	s.True(d.Allowed)
}

func (s *CacheSuite) TestRefreshUsesReportedUsage() {
	s.expectIssue(s.grant(30, 0, 12))
	usage, err := s.cache.Refresh(context.Background(), subject)
	s.Require().NoError(err)
	s.Equal(12, usage.CumulativeCount)
	s.Equal(18, usage.Remaining())
}

func (s *CacheSuite) TestOnRefreshSeesEveryNewPermit() {
	ctx := context.Background()
	var seen []int
	keyring, err := authority.NewKeyring([]config.KeySpec{{ID: "k1", Secret: secret}})
	s.Require().NoError(err)
	s.cache, err = New(s.issuer, keyring, s.store,
		WithClock(s.clock.Now),
		WithOnRefresh(func(_ context.Context, usage *models.LocalUsage) {
			seen = append(seen, usage.Remaining())
		}),
	)
	s.Require().NoError(err)

	s.Run("refresh triggered by admission", func() {
		s.expectIssue(s.grant(2, 0, 1))
		_, err := s.cache.Admit(ctx, subject)
		s.Require().NoError(err)
		s.Equal([]int{1}, seen)
	})

	s.Run("explicit refresh", func() {
		s.expectIssue(s.grant(5, 0, 0))
		_, err := s.cache.Refresh(ctx, subject)
		s.Require().NoError(err)
		s.Equal([]int{1, 5}, seen)
	})

	s.Run("failed refresh is not reported", func() {
		s.issuer.EXPECT().Issue(gomock.Any(), subject, gomock.Any()).Return(nil, errors.New("connection refused"))
		_, err := s.cache.Refresh(ctx, subject)
		s.Error(err)
		s.Len(seen, 2)
	})
}

// =============================================================================
// Integrity and failures
// =============================================================================

func (s *CacheSuite) TestRefreshRejectsUntrustedPermit() {
	s.Run("bad signature", func() {
		g := s.grant(30, 0, 0)
		g.Permit.Signature = "00ff"
		s.expectIssue(g)
		_, err := s.cache.Refresh(context.Background(), subject)
		s.True(dErrors.HasCode(err, dErrors.CodeIntegrity))
	})

	s.Run("different subject", func() {
		g := s.grant(30, 0, 0)
		g.Permit.SubjectID = "guest-other"
		s.expectIssue(g)
		_, err := s.cache.Refresh(context.Background(), subject)
		s.True(dErrors.HasCode(err, dErrors.CodeIntegrity))
	})
}

func (s *CacheSuite) TestIssuerFailure() {
	s.issuer.EXPECT().Issue(gomock.Any(), subject, gomock.Any()).Return(nil, errors.New("connection refused"))
	_, err := s.cache.Admit(context.Background(), subject)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *CacheSuite) TestRecordConsumptionWithoutPermit() {
	_, err := s.cache.RecordConsumption(context.Background(), subject)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

// =============================================================================
// Concurrency
// =============================================================================

func (s *CacheSuite) TestConcurrentRefreshCollapses() {
	started := make(chan struct{})
	release := make(chan struct{})
	g := s.grant(30, 0, 0)
	s.issuer.EXPECT().Issue(gomock.Any(), subject, gomock.Any()).
		DoAndReturn(func(context.Context, id.SubjectID, id.IntentID) (*models.Grant, error) {
			close(started)
			<-release
			return g, nil
		}).Times(1)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.cache.Refresh(context.Background(), subject)
			errs <- err
		}()
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}
}
