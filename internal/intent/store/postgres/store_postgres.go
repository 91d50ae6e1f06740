package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/sentinel"
)

const schema = `
CREATE TABLE IF NOT EXISTS intent_records (
	intent_id  TEXT PRIMARY KEY,
	result     BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_intent_records_expires ON intent_records (expires_at);
`

// PostgresStore persists intent records in PostgreSQL. Pure I/O; retention
// policy lives in the ledger.
type PostgresStore struct {
	db *sql.DB
}

func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create intent schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, intentID id.IntentID, now time.Time) (*intent.Record, error) {
	rec := intent.Record{IntentID: intentID}
	err := s.db.QueryRowContext(ctx, `
		SELECT result, created_at, expires_at
		FROM intent_records
		WHERE intent_id = $1 AND expires_at > $2
	`, intentID.String(), now).Scan(&rec.Result, &rec.CreatedAt, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get intent record: %w", err)
	}
	return &rec, nil
}

// Put inserts rec, replacing an existing row only if that row has expired.
func (s *PostgresStore) Put(ctx context.Context, rec intent.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO intent_records (intent_id, result, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (intent_id) DO UPDATE SET
			result = EXCLUDED.result,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
		WHERE intent_records.expires_at <= EXCLUDED.created_at
	`, rec.IntentID.String(), rec.Result, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("put intent record: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM intent_records WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired intents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired intents: %w", err)
	}
	return int(n), nil
}
