package authority

import (
	"fmt"
	"time"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/models"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/platform/config"
	dErrors "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain-errors"
)

// SigningKey is one secret in the rotation set.
type SigningKey struct {
	ID        string
	Secret    []byte
	RetiresAt *time.Time // nil for keys that never retire
}

func (k SigningKey) retired(now time.Time) bool {
	return k.RetiresAt != nil && now.After(*k.RetiresAt)
}

// Keyring is the ordered rotation set. The first key signs; every key that has
// not passed its retirement time verifies.
type Keyring struct {
	keys []SigningKey
}

// NewKeyring builds a keyring from configuration. An empty spec list yields an
// empty keyring: construction succeeds, but signing and verification fail.
func NewKeyring(specs []config.KeySpec) (*Keyring, error) {
	seen := make(map[string]struct{}, len(specs))
	keys := make([]SigningKey, 0, len(specs))
	for _, spec := range specs {
		if spec.ID == "" {
			return nil, fmt.Errorf("signing key id is required")
		}
		if spec.Secret == "" {
			return nil, fmt.Errorf("signing key %q has no secret", spec.ID)
		}
		if _, dup := seen[spec.ID]; dup {
			return nil, fmt.Errorf("signing key %q is configured twice", spec.ID)
		}
		seen[spec.ID] = struct{}{}
		keys = append(keys, SigningKey{ID: spec.ID, Secret: []byte(spec.Secret), RetiresAt: spec.RetiresAt})
	}
	return &Keyring{keys: keys}, nil
}

// Active returns the signing key.
func (k *Keyring) Active() (SigningKey, error) {
	if k == nil || len(k.keys) == 0 {
		return SigningKey{}, dErrors.New(dErrors.CodeInternal, "no signing key configured")
	}
	return k.keys[0], nil
}

// ValidKeys returns the secrets accepted for verification at now. The active
// key is always included.
func (k *Keyring) ValidKeys(now time.Time) [][]byte {
	if k == nil {
		return nil
	}
	out := make([][]byte, 0, len(k.keys))
	for i, key := range k.keys {
		if i > 0 && key.retired(now) {
			continue
		}
		out = append(out, key.Secret)
	}
	return out
}

// Verify checks the permit's structure and its signature against every
// currently valid key. Failures are integrity errors.
func (k *Keyring) Verify(permit *models.QuotaPermit, now time.Time) error {
	if permit == nil {
		return dErrors.New(dErrors.CodeIntegrity, "permit is missing")
	}
	if err := permit.Validate(); err != nil {
		return err
	}
	keys := k.ValidKeys(now)
	if len(keys) == 0 {
		return dErrors.New(dErrors.CodeInternal, "no verification key configured")
	}
	if !VerifyAny(permit, keys) {
		return dErrors.New(dErrors.CodeIntegrity, "permit signature does not match")
	}
	return nil
}
