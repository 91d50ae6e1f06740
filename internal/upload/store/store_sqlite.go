package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/upload/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/sentinel"
)

const taskColumns = `id, subject_id, source_location, file_name, content_hash, status, retry_count,
	last_error, error_kind, object_key, enqueued_at, next_attempt_at, updated_at`

// SQLiteTaskStore keeps tasks in the upload_tasks table. Times are epoch
// nanoseconds so two tasks enqueued in the same millisecond keep their order
// across a restart.
type SQLiteTaskStore struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLiteTaskStore {
	return &SQLiteTaskStore{db: db}
}

func (s *SQLiteTaskStore) Create(ctx context.Context, task *models.Task) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO upload_tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, taskArgs(task)...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create upload task: %w", err)
	}
	return nil
}

func (s *SQLiteTaskStore) Update(ctx context.Context, task *models.Task) error {
	res, err := s.db.ExecContext(ctx, `UPDATE upload_tasks SET
			subject_id = ?, source_location = ?, file_name = ?, content_hash = ?, status = ?,
			retry_count = ?, last_error = ?, error_kind = ?, object_key = ?, enqueued_at = ?,
			next_attempt_at = ?, updated_at = ?
		WHERE id = ?`, append(taskArgs(task)[1:], task.ID.String())...)
	if err != nil {
		return fmt.Errorf("update upload task: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteTaskStore) Delete(ctx context.Context, taskID id.TaskID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM upload_tasks WHERE id = ?`, taskID.String())
	if err != nil {
		return fmt.Errorf("delete upload task: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteTaskStore) Get(ctx context.Context, taskID id.TaskID) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM upload_tasks WHERE id = ?`, taskID.String())
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get upload task: %w", err)
	}
	return task, nil
}

func (s *SQLiteTaskStore) List(ctx context.Context) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM upload_tasks ORDER BY enqueued_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list upload tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upload task: %w", err)
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*models.Task, error) {
	var (
		t                                models.Task
		taskID, subject, status, kind    string
		enqueuedAt, nextAttempt, updated int64
	)
	err := row.Scan(&taskID, &subject, &t.SourceLocation, &t.FileName, &t.ContentHash, &status,
		&t.RetryCount, &t.LastError, &kind, &t.ObjectKey, &enqueuedAt, &nextAttempt, &updated)
	if err != nil {
		return nil, err
	}
	parsed, err := id.ParseTaskID(taskID)
	if err != nil {
		return nil, err
	}
	t.ID = parsed
	t.SubjectID = id.SubjectID(subject)
	t.Status = models.Status(status)
	t.ErrorKind = models.ErrorKind(kind)
	t.EnqueuedAt = fromNanos(enqueuedAt)
	t.NextAttemptAt = fromNanos(nextAttempt)
	t.UpdatedAt = fromNanos(updated)
	return &t, nil
}

func taskArgs(t *models.Task) []any {
	return []any{
		t.ID.String(), t.SubjectID.String(), t.SourceLocation, t.FileName, t.ContentHash,
		string(t.Status), t.RetryCount, t.LastError, string(t.ErrorKind), t.ObjectKey,
		toNanos(t.EnqueuedAt), toNanos(t.NextAttemptAt), toNanos(t.UpdatedAt),
	}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
