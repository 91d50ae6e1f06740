//go:build integration

package pgsource_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/reconcile/models"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/reconcile/remote/pgsource"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/testutil/containers"
)

func TestSource_Fetch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	pg := containers.GetManager().GetPostgres(t)

	src, err := pgsource.Open(ctx, pg.DSN)
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.EnsureSchema(ctx))

	confirmed := time.Date(2026, 1, 15, 11, 0, 0, 0, time.UTC)
	jan := models.Record{
		ID:          "pg-tx-jan",
		SubjectID:   "user-pg",
		UpdatedAt:   time.Date(2026, 1, 15, 10, 0, 0, 250000000, time.UTC),
		ConfirmedAt: &confirmed,
		Type:        models.RecordExpense,
		Amount:      1500,
		Currency:    "JPY",
		Merchant:    "FamilyMart",
		Date:        "2026-01-15",
	}
	feb := jan
	feb.ID = "pg-tx-feb"
	feb.ConfirmedAt = nil
	feb.Date = "2026-02-02"
	require.NoError(t, src.Put(ctx, jan))
	require.NoError(t, src.Put(ctx, feb))

	all, err := src.Fetch(ctx, "user-pg", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	inJan, err := src.Fetch(ctx, "user-pg", &models.DateRange{From: "2026-01-01", To: "2026-01-31"})
	require.NoError(t, err)
	require.Len(t, inJan, 1)
	assert.True(t, inJan[0].Equal(&jan))

	none, err := src.Fetch(ctx, "user-nobody", nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
