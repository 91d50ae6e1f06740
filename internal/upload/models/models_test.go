package models

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	dErrors "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain-errors"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"dial failure", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, ErrorNetwork},
		{"deadline", fmt.Errorf("put: %w", context.DeadlineExceeded), ErrorTimeout},
		{"503", statusErr(503), ErrorServer},
		{"429", statusErr(429), ErrorServer},
		{"403", statusErr(403), ErrorAuthorization},
		{"413", statusErr(413), ErrorValidation},
		{"504", statusErr(504), ErrorTimeout},
		{"missing source", fmt.Errorf("open: %w", os.ErrNotExist), ErrorValidation},
		{"integrity", dErrors.New(dErrors.CodeIntegrity, "bad permit"), ErrorIntegrity},
		{"wrapped quota", dErrors.Wrap(dErrors.New(dErrors.CodeQuotaExceeded, "q"), dErrors.CodeInternal, "x"), ErrorQuota},
		{"unavailable", dErrors.New(dErrors.CodeUnavailable, "down"), ErrorNetwork},
		{"plain", errors.New("???"), ErrorUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
	assert.Equal(t, ErrorKind(""), Classify(nil))
}

func TestErrorKindRetryable(t *testing.T) {
	for _, k := range []ErrorKind{ErrorNetwork, ErrorTimeout, ErrorServer, ErrorUnknown} {
		assert.True(t, k.Retryable(), k)
	}
	for _, k := range []ErrorKind{ErrorValidation, ErrorAuthorization, ErrorQuota, ErrorIntegrity} {
		assert.False(t, k.Retryable(), k)
	}
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{time.Second, 5 * time.Second, 30 * time.Second}
	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 5*time.Second, b.Delay(2))
	assert.Equal(t, 30*time.Second, b.Delay(3))
	assert.Equal(t, 30*time.Second, b.Delay(9), "last entry is reused")
	assert.Equal(t, time.Second, b.Delay(0))
	assert.Zero(t, Backoff(nil).Delay(1))
}
