package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/sentinel"
)

// SQLiteUsageStore keeps usage in the permit_usage table. Timestamps are
// epoch milliseconds; 0 in last_consumed_at means never consumed.
type SQLiteUsageStore struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLiteUsageStore {
	return &SQLiteUsageStore{db: db}
}

func (s *SQLiteUsageStore) Load(ctx context.Context, subject id.SubjectID) (*models.LocalUsage, error) {
	var (
		u                          models.LocalUsage
		subjectID, tier            string
		issuedAt, expiresAt, lastC int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT subject_id, tier, total_limit, daily_rate, issued_at, expires_at,
		       signature, cumulative_count, last_consumed_at
		FROM permit_usage WHERE subject_id = ?`, subject.String(),
	).Scan(&subjectID, &tier, &u.Permit.TotalLimit, &u.Permit.DailyRate,
		&issuedAt, &expiresAt, &u.Permit.Signature, &u.CumulativeCount, &lastC)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load permit usage: %w", err)
	}
	u.Permit.SubjectID = id.SubjectID(subjectID)
	u.Permit.Tier = models.Tier(tier)
	u.Permit.IssuedAt = time.UnixMilli(issuedAt).UTC()
	u.Permit.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	if lastC > 0 {
		u.LastConsumedAt = time.UnixMilli(lastC).UTC()
	}
	return &u, nil
}

func (s *SQLiteUsageStore) Save(ctx context.Context, usage *models.LocalUsage) error {
	var last int64
	if !usage.LastConsumedAt.IsZero() {
		last = usage.LastConsumedAt.UnixMilli()
	}
	p := usage.Permit
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permit_usage (subject_id, tier, total_limit, daily_rate, issued_at,
		                          expires_at, signature, cumulative_count, last_consumed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subject_id) DO UPDATE SET
			tier = excluded.tier,
			total_limit = excluded.total_limit,
			daily_rate = excluded.daily_rate,
			issued_at = excluded.issued_at,
			expires_at = excluded.expires_at,
			signature = excluded.signature,
			cumulative_count = excluded.cumulative_count,
			last_consumed_at = excluded.last_consumed_at`,
		p.SubjectID.String(), string(p.Tier), p.TotalLimit, p.DailyRate,
		p.IssuedAt.UnixMilli(), p.ExpiresAt.UnixMilli(), p.Signature,
		usage.CumulativeCount, last,
	)
	if err != nil {
		return fmt.Errorf("save permit usage: %w", err)
	}
	return nil
}
