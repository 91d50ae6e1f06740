package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/reconcile/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/sentinel"
)

// SQLiteRecordStore keeps records in the transactions table. Timestamps are
// epoch nanoseconds so a stored record compares equal to its remote source.
type SQLiteRecordStore struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLiteRecordStore {
	return &SQLiteRecordStore{db: db}
}

const recordColumns = `id, subject_id, type, amount, currency, category, merchant,
	description, date, image_id, updated_at, confirmed_at`

func (s *SQLiteRecordStore) List(ctx context.Context, subject id.SubjectID, rng *models.DateRange) ([]models.Record, error) {
	var (
		where = []string{"subject_id = ?"}
		args  = []any{subject.String()}
	)
	if rng != nil && rng.From != "" {
		where = append(where, "date >= ?")
		args = append(args, rng.From)
	}
	if rng != nil && rng.To != "" {
		where = append(where, "date <= ?")
		args = append(args, rng.To)
	}
	query := `SELECT ` + recordColumns + ` FROM transactions WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY date, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

func (s *SQLiteRecordStore) Upsert(ctx context.Context, rec models.Record) error {
	var confirmed sql.NullInt64
	if rec.Confirmed() {
		confirmed = sql.NullInt64{Int64: rec.ConfirmedAt.UnixNano(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject_id = excluded.subject_id,
			type = excluded.type,
			amount = excluded.amount,
			currency = excluded.currency,
			category = excluded.category,
			merchant = excluded.merchant,
			description = excluded.description,
			date = excluded.date,
			image_id = excluded.image_id,
			updated_at = excluded.updated_at,
			confirmed_at = excluded.confirmed_at`,
		rec.ID.String(), rec.SubjectID.String(), string(rec.Type), rec.Amount, rec.Currency,
		rec.Category, rec.Merchant, rec.Description, rec.Date, rec.ImageID,
		rec.UpdatedAt.UnixNano(), confirmed,
	)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

func (s *SQLiteRecordStore) Get(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM transactions WHERE id = ?`, recordID.String())
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.Record, error) {
	var (
		r                 models.Record
		recordID, subject string
		recordType        string
		updated           int64
		confirmed         sql.NullInt64
	)
	err := row.Scan(&recordID, &subject, &recordType, &r.Amount, &r.Currency, &r.Category,
		&r.Merchant, &r.Description, &r.Date, &r.ImageID, &updated, &confirmed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	r.ID = id.RecordID(recordID)
	r.SubjectID = id.SubjectID(subject)
	r.Type = models.RecordType(recordType)
	r.UpdatedAt = time.Unix(0, updated).UTC()
	if confirmed.Valid {
		at := time.Unix(0, confirmed.Int64).UTC()
		r.ConfirmedAt = &at
	}
	return &r, nil
}
