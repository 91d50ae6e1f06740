package authority

import (
	"encoding/hex"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/models"
)

// hmac is HMAC-SHA256 with a constant-time compare on verify.
var hmac = jwt.SigningMethodHS256

// signingInput is the canonical byte form of the signed fields, in fixed
// order: subject, total limit, daily rate, expiry ms, issue ms. The subject is
// length-prefixed so no field value can shift into its neighbour.
func signingInput(p *models.QuotaPermit) string {
	subject := p.SubjectID.String()
	return fmt.Sprintf("%d:%s|%d|%d|%d|%d",
		len(subject), subject,
		p.TotalLimit,
		p.DailyRate,
		p.ExpiresAt.UnixMilli(),
		p.IssuedAt.UnixMilli(),
	)
}

// Sign returns the hex-encoded HMAC of the permit's signed fields.
func Sign(p *models.QuotaPermit, key []byte) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("signing key is empty")
	}
	sig, err := hmac.Sign(signingInput(p), key)
	if err != nil {
		return "", fmt.Errorf("sign permit: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// Verify reports whether the permit's signature was produced with key.
func Verify(p *models.QuotaPermit, key []byte) bool {
	if p == nil || len(key) == 0 {
		return false
	}
	sig, err := hex.DecodeString(p.Signature)
	if err != nil || len(sig) == 0 {
		return false
	}
	return hmac.Verify(signingInput(p), sig, key) == nil
}

// VerifyAny reports whether any key in the rotation set verifies the permit.
func VerifyAny(p *models.QuotaPermit, keys [][]byte) bool {
	for _, key := range keys {
		if Verify(p, key) {
			return true
		}
	}
	return false
}
