package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent/store/storetest"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
)

func TestInMemoryStore(t *testing.T) {
	storetest.Run(t, New())
}

func TestInMemoryStore_DeleteExpired(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(ctx, intent.Record{IntentID: "old", Result: []byte(`1`), CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.Put(ctx, intent.Record{IntentID: "new", Result: []byte(`2`), CreatedAt: now, ExpiresAt: now.Add(3 * time.Hour)}))

	n, err := s.DeleteExpired(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, s.Len())

	_, err = s.Get(ctx, id.IntentID("new"), now.Add(2*time.Hour))
	assert.NoError(t, err)
}

func TestInMemoryStore_ExpiredRecordCanBeReplaced(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(ctx, intent.Record{IntentID: "x", Result: []byte(`"a"`), CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))
	later := now.Add(2 * time.Hour)
	require.NoError(t, s.Put(ctx, intent.Record{IntentID: "x", Result: []byte(`"b"`), CreatedAt: later, ExpiresAt: later.Add(time.Hour)}))

	rec, err := s.Get(ctx, "x", later)
	require.NoError(t, err)
	assert.Equal(t, `"b"`, string(rec.Result))
}
