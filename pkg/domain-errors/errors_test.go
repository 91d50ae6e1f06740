package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	inner := Wrap(cause, CodeUnavailable, "authority unreachable")
	outer := Wrap(fmt.Errorf("refresh: %w", inner), CodeInternal, "permit refresh failed")

	t.Run("HasCode walks the chain", func(t *testing.T) {
		assert.True(t, HasCode(outer, CodeInternal))
		assert.True(t, HasCode(outer, CodeUnavailable))
		assert.False(t, HasCode(outer, CodeIntegrity))
		assert.True(t, Is(inner, CodeUnavailable))
	})

	t.Run("CodeOf returns the outermost code", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(outer))
		assert.Equal(t, CodeUnavailable, CodeOf(inner))
		assert.Equal(t, CodeInternal, CodeOf(cause))
	})

	t.Run("Unwrap reaches the cause", func(t *testing.T) {
		assert.ErrorIs(t, outer, cause)
		assert.Equal(t, "authority unreachable: dial tcp: refused", inner.Error())
	})

	t.Run("Wrap of nil is nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "x"))
	})
}
