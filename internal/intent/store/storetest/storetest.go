// Package storetest is a behavioural check shared by every intent store.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/sentinel"
)

// Run exercises s with intent ids unique to this run.
func Run(t *testing.T, s intent.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("absent record", func(t *testing.T) {
		_, err := s.Get(ctx, id.NewIntentID(), now)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("first write wins", func(t *testing.T) {
		intentID := id.NewIntentID()
		require.NoError(t, s.Put(ctx, intent.Record{IntentID: intentID, Result: []byte(`"first"`), CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))
		require.NoError(t, s.Put(ctx, intent.Record{IntentID: intentID, Result: []byte(`"second"`), CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))

		rec, err := s.Get(ctx, intentID, now)
		require.NoError(t, err)
		assert.Equal(t, `"first"`, string(rec.Result))
		assert.Equal(t, intentID, rec.IntentID)
	})

	t.Run("expired record reads as absent", func(t *testing.T) {
		intentID := id.NewIntentID()
		require.NoError(t, s.Put(ctx, intent.Record{IntentID: intentID, Result: []byte(`1`), CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))

		_, err := s.Get(ctx, intentID, now.Add(time.Hour))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
