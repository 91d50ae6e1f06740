//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent/store/postgres"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent/store/storetest"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	s := postgres.New(pg.DB)
	require.NoError(t, s.EnsureSchema(context.Background()))

	storetest.Run(t, s)

	t.Run("delete expired", func(t *testing.T) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Millisecond)
		intentID := id.NewIntentID()
		require.NoError(t, s.Put(ctx, intent.Record{IntentID: intentID, Result: []byte(`1`), CreatedAt: now, ExpiresAt: now.Add(time.Minute)}))

		n, err := s.DeleteExpired(ctx, now.Add(time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)
	})
}
