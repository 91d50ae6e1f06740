package authority

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	pconfig "github.com/aifuun/yorutsuke-v2-sub006/internal/permit/config"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/models"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/platform/config"
	dErrors "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain-errors"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/testutil"
)

type AuthoritySuite struct {
	suite.Suite
	clock     *testutil.Clock
	keyring   *Keyring
	authority *Authority
}

func TestAuthoritySuite(t *testing.T) {
	suite.Run(t, new(AuthoritySuite))
}

func (s *AuthoritySuite) SetupTest() {
	s.clock = testutil.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC))
	var err error
	s.keyring, err = NewKeyring([]config.KeySpec{{ID: "k1", Secret: "primary-secret"}})
	s.Require().NoError(err)
	s.authority, err = New(pconfig.DefaultConfig(), s.keyring, WithClock(s.clock.Now))
	s.Require().NoError(err)
}

func (s *AuthoritySuite) issue(subject string) *models.QuotaPermit {
	p, err := s.authority.Issue(context.Background(), subject, nil)
	s.Require().NoError(err)
	return p
}

// =============================================================================
// Issuance
// =============================================================================

func (s *AuthoritySuite) TestIssue() {
	s.Run("guest namespace gets guest tier", func() {
		p := s.issue("guest-device-1")
		s.Equal(models.TierGuest, p.Tier)
		s.Equal(30, p.TotalLimit)
		s.Equal(10, p.DailyRate)
		s.Equal(s.clock.Now().UTC().Truncate(time.Millisecond), p.IssuedAt)
		s.Equal(p.IssuedAt.Add(7*24*time.Hour), p.ExpiresAt)
		s.NotEmpty(p.Signature)
	})

	s.Run("user namespace gets standard tier", func() {
		p := s.issue("user-42")
		s.Equal(models.TierStandard, p.Tier)
		s.Equal(1000, p.TotalLimit)
	})

	s.Run("validity override", func() {
		days := 3
		p, err := s.authority.Issue(context.Background(), "user-42", &days)
		s.Require().NoError(err)
		s.Equal(p.IssuedAt.Add(72*time.Hour), p.ExpiresAt)
	})

	s.Run("unknown namespace is invalid subject", func() {
		_, err := s.authority.Issue(context.Background(), "admin-root", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidSubject))
	})

	s.Run("malformed subject is invalid subject", func() {
		_, err := s.authority.Issue(context.Background(), "no namespace", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidSubject))
	})

	s.Run("non-positive validity is rejected", func() {
		for _, days := range []int{0, -1} {
			d := days
			_, err := s.authority.Issue(context.Background(), "user-42", &d)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidValidity), "days=%d", d)
		}
	})

	s.Run("missing key material fails issuance", func() {
		empty, err := NewKeyring(nil)
		s.Require().NoError(err)
		a, err := New(pconfig.DefaultConfig(), empty)
		s.Require().NoError(err)
		_, err = a.Issue(context.Background(), "user-42", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

// =============================================================================
// Signature integrity
// =============================================================================

func (s *AuthoritySuite) TestSignatureCoversEverySignedField() {
	mutations := map[string]func(p *models.QuotaPermit){
		"subject":     func(p *models.QuotaPermit) { p.SubjectID = "guest-device-2" },
		"total limit": func(p *models.QuotaPermit) { p.TotalLimit++ },
		"daily rate":  func(p *models.QuotaPermit) { p.DailyRate++ },
		"expires at":  func(p *models.QuotaPermit) { p.ExpiresAt = p.ExpiresAt.Add(time.Millisecond) },
		"issued at":   func(p *models.QuotaPermit) { p.IssuedAt = p.IssuedAt.Add(-time.Millisecond) },
	}
	for name, mutate := range mutations {
		s.Run(name, func() {
			p := s.issue("guest-device-1")
			s.Require().NoError(s.authority.Verify(p))

			mutate(p)
			err := s.authority.Verify(p)
			s.True(dErrors.HasCode(err, dErrors.CodeIntegrity))
		})
	}
}

func (s *AuthoritySuite) TestVerify() {
	p := s.issue("user-42")

	s.Run("wrong key fails", func() {
		s.False(Verify(p, []byte("other-secret")))
	})

	s.Run("right key passes", func() {
		s.True(Verify(p, []byte("primary-secret")))
	})

	s.Run("rotation set containing the right key passes", func() {
		s.True(VerifyAny(p, [][]byte{[]byte("a"), []byte("primary-secret"), []byte("b")}))
	})

	s.Run("rotation set without the right key fails", func() {
		s.False(VerifyAny(p, [][]byte{[]byte("a"), []byte("b")}))
		s.False(VerifyAny(p, nil))
	})

	s.Run("garbage signature fails", func() {
		tampered := *p
		tampered.Signature = "zz-not-hex"
		s.False(Verify(&tampered, []byte("primary-secret")))
	})

	s.Run("unsigned permit is an integrity error", func() {
		tampered := *p
		tampered.Signature = ""
		s.True(dErrors.HasCode(s.keyring.Verify(&tampered, s.clock.Now()), dErrors.CodeIntegrity))
	})
}

// =============================================================================
// Key rotation
// =============================================================================

func (s *AuthoritySuite) TestRotation() {
	old := s.issue("user-42")

	retires := s.clock.Now().Add(48 * time.Hour)
	rotated, err := NewKeyring([]config.KeySpec{
		{ID: "k2", Secret: "next-secret"},
		{ID: "k1", Secret: "primary-secret", RetiresAt: &retires},
	})
	s.Require().NoError(err)
	a, err := New(pconfig.DefaultConfig(), rotated, WithClock(s.clock.Now))
	s.Require().NoError(err)

	s.Run("new permits are signed with the active key", func() {
		p, err := a.Issue(context.Background(), "user-42", nil)
		s.Require().NoError(err)
		s.True(Verify(p, []byte("next-secret")))
		s.False(Verify(p, []byte("primary-secret")))
	})

	s.Run("retired key verifies until its retirement", func() {
		s.NoError(a.Verify(old))
		s.clock.Set(retires)
		s.NoError(a.Verify(old))
	})

	s.Run("retired key stops verifying after retirement", func() {
		s.clock.Set(retires.Add(time.Millisecond))
		s.True(dErrors.HasCode(a.Verify(old), dErrors.CodeIntegrity))
	})
}

func (s *AuthoritySuite) TestNewKeyringRejectsBadSpecs() {
	_, err := NewKeyring([]config.KeySpec{{ID: "", Secret: "x"}})
	s.Error(err)
	_, err = NewKeyring([]config.KeySpec{{ID: "a", Secret: ""}})
	s.Error(err)
	_, err = NewKeyring([]config.KeySpec{{ID: "a", Secret: "x"}, {ID: "a", Secret: "y"}})
	s.Error(err)
}

// =============================================================================
// Expiry boundary
// =============================================================================

func (s *AuthoritySuite) TestExpiryBoundary() {
	p := s.issue("guest-device-1")

	s.False(p.IsExpired(p.ExpiresAt.Add(-time.Millisecond)))
	s.False(p.IsExpired(p.ExpiresAt), "a permit expiring exactly now is still valid")
	s.True(p.IsExpired(p.ExpiresAt.Add(time.Millisecond)))
}
