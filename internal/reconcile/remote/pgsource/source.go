// Package pgsource reads the remote snapshot straight from the record
// service's Postgres database.
package pgsource

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/reconcile/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
)

type Source struct {
	db *sql.DB
}

// Open connects through the pgx database/sql driver.
func Open(ctx context.Context, dsn string) (*Source, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open remote database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping remote database: %w", err)
	}
	return &Source{db: db}, nil
}

func New(db *sql.DB) *Source {
	return &Source{db: db}
}

func (s *Source) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the transactions table. The record service owns the
// schema in production; tests and local setups call this.
func (s *Source) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id           TEXT PRIMARY KEY,
			subject_id   TEXT NOT NULL,
			type         TEXT NOT NULL,
			amount       BIGINT NOT NULL,
			currency     TEXT NOT NULL DEFAULT 'JPY',
			category     TEXT NOT NULL DEFAULT '',
			merchant     TEXT NOT NULL DEFAULT '',
			description  TEXT NOT NULL DEFAULT '',
			date         DATE NOT NULL,
			image_id     TEXT NOT NULL DEFAULT '',
			updated_at   TIMESTAMPTZ NOT NULL,
			confirmed_at TIMESTAMPTZ
		)`)
	if err != nil {
		return fmt.Errorf("create transactions table: %w", err)
	}
	return nil
}

func (s *Source) Fetch(ctx context.Context, subject id.SubjectID, rng *models.DateRange) ([]models.Record, error) {
	var (
		where = []string{"subject_id = $1"}
		args  = []any{subject.String()}
	)
	if rng != nil && rng.From != "" {
		args = append(args, rng.From)
		where = append(where, "date >= $"+strconv.Itoa(len(args)))
	}
	if rng != nil && rng.To != "" {
		args = append(args, rng.To)
		where = append(where, "date <= $"+strconv.Itoa(len(args)))
	}
	query := `SELECT id, subject_id, type, amount, currency, category, merchant, description,
		to_char(date, 'YYYY-MM-DD'), image_id, updated_at, confirmed_at
		FROM transactions WHERE ` + strings.Join(where, " AND ")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query remote records: %w", err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		var (
			r              models.Record
			recordID, subj string
			recordType     string
			confirmed      sql.NullTime
		)
		if err := rows.Scan(&recordID, &subj, &recordType, &r.Amount, &r.Currency, &r.Category,
			&r.Merchant, &r.Description, &r.Date, &r.ImageID, &r.UpdatedAt, &confirmed); err != nil {
			return nil, fmt.Errorf("scan remote record: %w", err)
		}
		r.ID = id.RecordID(recordID)
		r.SubjectID = id.SubjectID(subj)
		r.Type = models.RecordType(recordType)
		r.UpdatedAt = r.UpdatedAt.UTC()
		if confirmed.Valid {
			at := confirmed.Time.UTC()
			r.ConfirmedAt = &at
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query remote records: %w", err)
	}
	return out, nil
}

// Put writes a record as the record service would; used by local tooling and tests.
func (s *Source) Put(ctx context.Context, rec models.Record) error {
	var confirmed *time.Time
	if rec.Confirmed() {
		confirmed = rec.ConfirmedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, subject_id, type, amount, currency, category, merchant,
			description, date, image_id, updated_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type, amount = EXCLUDED.amount, currency = EXCLUDED.currency,
			category = EXCLUDED.category, merchant = EXCLUDED.merchant,
			description = EXCLUDED.description, date = EXCLUDED.date,
			image_id = EXCLUDED.image_id, updated_at = EXCLUDED.updated_at,
			confirmed_at = EXCLUDED.confirmed_at`,
		rec.ID.String(), rec.SubjectID.String(), string(rec.Type), rec.Amount, rec.Currency,
		rec.Category, rec.Merchant, rec.Description, rec.Date, rec.ImageID, rec.UpdatedAt, confirmed,
	)
	if err != nil {
		return fmt.Errorf("put remote record: %w", err)
	}
	return nil
}
