package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/platform/sqlite"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/reconcile/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/sentinel"
)

type recordStore interface {
	List(ctx context.Context, subject id.SubjectID, rng *models.DateRange) ([]models.Record, error)
	Upsert(ctx context.Context, rec models.Record) error
	Get(ctx context.Context, recordID id.RecordID) (*models.Record, error)
}

func newRecord(recordID id.RecordID, subject id.SubjectID, date string) models.Record {
	return models.Record{
		ID:        recordID,
		SubjectID: subject,
		UpdatedAt: time.Date(2026, 1, 15, 10, 0, 0, 123456789, time.UTC),
		Type:      models.RecordExpense,
		Amount:    980,
		Currency:  "JPY",
		Category:  "food",
		Merchant:  "Lawson",
		Date:      date,
		ImageID:   "img-1",
	}
}

func TestRecordStores(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stores := map[string]recordStore{
		"memory": NewInMemory(),
		"sqlite": NewSQLite(db),
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			jan := newRecord("tx-jan", "user-1", "2026-01-20")
			feb := newRecord("tx-feb", "user-1", "2026-02-03")
			other := newRecord("tx-other", "user-2", "2026-01-21")
			for _, r := range []models.Record{feb, jan, other} {
				require.NoError(t, s.Upsert(ctx, r))
			}

			all, err := s.List(ctx, "user-1", nil)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, id.RecordID("tx-jan"), all[0].ID, "ordered by date")
			assert.True(t, all[0].Equal(&jan), "nanosecond timestamps survive a round trip")

			inJan, err := s.List(ctx, "user-1", &models.DateRange{From: "2026-01-01", To: "2026-01-31"})
			require.NoError(t, err)
			require.Len(t, inJan, 1)
			assert.Equal(t, id.RecordID("tx-jan"), inJan[0].ID)

			confirmed := time.Date(2026, 1, 21, 8, 0, 0, 0, time.UTC)
			jan.ConfirmedAt = &confirmed
			jan.Amount = 1000
			require.NoError(t, s.Upsert(ctx, jan))
			got, err := s.Get(ctx, "tx-jan")
			require.NoError(t, err)
			assert.True(t, got.Equal(&jan))
			assert.True(t, got.Confirmed())

			_, err = s.Get(ctx, "missing")
			assert.ErrorIs(t, err, sentinel.ErrNotFound)
		})
	}
}
