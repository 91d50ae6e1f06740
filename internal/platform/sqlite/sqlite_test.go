package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	var versions, version int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*), MAX(version) FROM schema_version`).Scan(&versions, &version))
	assert.Equal(t, 1, versions)
	assert.Equal(t, currentSchemaVersion, version)

	for _, table := range []string{"upload_tasks", "permit_usage", "transactions"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestOpen_MigratesMillisecondTaskTimes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.db")
	db, err := Open(path)
	require.NoError(t, err)

	enqueued := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	_, err = db.Exec(`UPDATE schema_version SET version = 1`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO upload_tasks (id, subject_id, source_location, file_name, status, enqueued_at, updated_at)
		VALUES ('t-1', 'user-1', '/tmp/a.webp', 'a.webp', 'idle', ?, ?)`, enqueued.UnixMilli(), enqueued.UnixMilli())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	var enqueuedAt, nextAttempt int64
	require.NoError(t, db.QueryRow(`SELECT enqueued_at, next_attempt_at FROM upload_tasks WHERE id = 't-1'`).Scan(&enqueuedAt, &nextAttempt))
	assert.Equal(t, enqueued.UnixNano(), enqueuedAt)
	assert.Zero(t, nextAttempt, "unset times stay zero")

	var version int
	require.NoError(t, db.QueryRow(`SELECT version FROM schema_version`).Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}
