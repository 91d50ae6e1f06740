package httpput

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/upload/models"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/upload/transport"
)

func TestWriter(t *testing.T) {
	t.Run("puts bytes with content type and token", func(t *testing.T) {
		var got string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "image/webp", r.Header.Get("Content-Type"))
			assert.Equal(t, "upload:1", r.Header.Get("X-Intent-Token"))
			b, _ := io.ReadAll(r.Body)
			got = string(b)
		}))
		defer srv.Close()

		err := New(nil).Write(context.Background(), transport.Location{URL: srv.URL, Token: "upload:1"},
			strings.NewReader("webp-bytes"), 10, "image/webp")
		require.NoError(t, err)
		assert.Equal(t, "webp-bytes", got)
	})

	t.Run("non-2xx is a classified status error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "expired signature", http.StatusForbidden)
		}))
		defer srv.Close()

		err := New(nil).Write(context.Background(), transport.Location{URL: srv.URL}, strings.NewReader("x"), 1, "image/webp")
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusForbidden, se.Code)
		assert.Equal(t, models.ErrorAuthorization, models.Classify(err))
	})
}
