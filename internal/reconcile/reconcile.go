// Package reconcile merges the remote snapshot of a subject's records into
// the local store, one deterministic decision per record.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/reconcile/metrics"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/reconcile/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	dErrors "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain-errors"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/audit"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/sentinel"
)

var tracer = otel.Tracer("yorutsuke.reconcile")

// RemoteSource returns the authoritative snapshot for a subject.
type RemoteSource interface {
	Fetch(ctx context.Context, subject id.SubjectID, rng *models.DateRange) ([]models.Record, error)
}

// LocalStore is the local replica. Get returns sentinel.ErrNotFound for an
// unknown id.
type LocalStore interface {
	List(ctx context.Context, subject id.SubjectID, rng *models.DateRange) ([]models.Record, error)
	Get(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	Upsert(ctx context.Context, rec models.Record) error
}

// RecordError names a record that could not be reconciled.
type RecordError struct {
	RecordID id.RecordID `json:"recordId"`
	Message  string      `json:"message"`
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %s: %s", e.RecordID, e.Message)
}

// Summary reports one pass. Conflicts counts differing pairs regardless of
// which side won; Synced counts local writes.
type Summary struct {
	Synced      int           `json:"synced"`
	Conflicts   int           `json:"conflicts"`
	Unchanged   int           `json:"unchanged"`
	Errors      []RecordError `json:"errors,omitempty"`
	RemoteCount int           `json:"remoteCount"`
	LocalCount  int           `json:"localCount"`
}

type Engine struct {
	remote  RemoteSource
	local   LocalStore
	ledger  *intent.Ledger
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLedger makes SyncWithIntent replay a completed pass instead of re-running it.
func WithLedger(l *intent.Ledger) Option {
	return func(e *Engine) {
		e.ledger = l
	}
}

func New(remote RemoteSource, local LocalStore, opts ...Option) (*Engine, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote source is required")
	}
	if local == nil {
		return nil, fmt.Errorf("local store is required")
	}
	e := &Engine{remote: remote, local: local, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Sync runs one pass for subject. Only a failure to read either snapshot
// fails the pass; per-record failures are collected in the summary.
func (e *Engine) Sync(ctx context.Context, subject id.SubjectID, rng *models.DateRange) (Summary, error) {
	if err := rng.Validate(); err != nil {
		return Summary{}, err
	}
	ctx, span := tracer.Start(ctx, "reconcile.sync", trace.WithAttributes(
		attribute.String("subject_id", subject.String()),
	))
	defer span.End()
	started := time.Now()

	remote, local, err := e.snapshots(ctx, subject, rng)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.ObservePass("error", time.Since(started))
		return Summary{}, err
	}

	summary := Summary{RemoteCount: len(remote), LocalCount: len(local)}
	byID := make(map[id.RecordID]*models.Record, len(local))
	for i := range local {
		byID[local[i].ID] = &local[i]
	}
	for i := range remote {
		e.reconcileOne(ctx, subject, rng, &remote[i], byID, &summary)
	}

	span.SetAttributes(
		attribute.Int("synced", summary.Synced),
		attribute.Int("conflicts", summary.Conflicts),
		attribute.Int("errors", len(summary.Errors)),
	)
	span.SetStatus(codes.Ok, "")
	e.metrics.ObservePass("ok", time.Since(started))
	e.metrics.AddSynced(summary.Synced)
	e.metrics.AddRecordErrors(len(summary.Errors))
	audit.Log(ctx, e.logger, audit.EventSyncCompleted,
		"subject_id", subject.String(),
		"synced", summary.Synced,
		"conflicts", summary.Conflicts,
		"unchanged", summary.Unchanged,
		"errors", len(summary.Errors),
		"remote_count", summary.RemoteCount,
		"local_count", summary.LocalCount,
	)
	return summary, nil
}

// SyncWithIntent runs Sync at most once per intent. A retried trigger gets
// the first pass's summary back with replayed=true.
func (e *Engine) SyncWithIntent(ctx context.Context, subject id.SubjectID, rng *models.DateRange, intentID id.IntentID) (Summary, bool, error) {
	if e.ledger == nil {
		s, err := e.Sync(ctx, subject, rng)
		return s, false, err
	}
	return intent.Do(ctx, e.ledger, intentID, func(ctx context.Context) (Summary, error) {
		return e.Sync(ctx, subject, rng)
	})
}

func (e *Engine) snapshots(ctx context.Context, subject id.SubjectID, rng *models.DateRange) ([]models.Record, []models.Record, error) {
	var remote, local []models.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := e.remote.Fetch(gctx, subject, rng)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to fetch remote records")
		}
		remote = recs
		return nil
	})
	g.Go(func() error {
		recs, err := e.local.List(gctx, subject, rng)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list local records")
		}
		local = recs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return remote, local, nil
}

func (e *Engine) reconcileOne(ctx context.Context, subject id.SubjectID, rng *models.DateRange, remote *models.Record, byID map[id.RecordID]*models.Record, summary *Summary) {
	if err := remote.Validate(); err != nil {
		summary.Errors = append(summary.Errors, RecordError{RecordID: remote.ID, Message: err.Error()})
		return
	}
	if remote.SubjectID != subject {
		summary.Errors = append(summary.Errors, RecordError{RecordID: remote.ID, Message: "record belongs to another subject"})
		return
	}

	local, ok := byID[remote.ID]
	if !ok && rng != nil {
		// The local copy may sit outside the range when the remote edit moved
		// its date in.
		found, err := e.outsideRange(ctx, subject, remote.ID)
		if err != nil {
			summary.Errors = append(summary.Errors, RecordError{RecordID: remote.ID, Message: err.Error()})
			return
		}
		local, ok = found, found != nil
	}
	if !ok {
		e.write(ctx, remote, summary)
		return
	}
	if local.Equal(remote) {
		summary.Unchanged++
		return
	}

	summary.Conflicts++
	res := Resolve(local, remote)
	e.metrics.IncrementConflict(string(res.Rule))
	audit.Log(ctx, e.logger, audit.EventConflictResolved,
		"subject_id", subject.String(),
		"record_id", remote.ID.String(),
		"winner", string(res.Winner),
		"rule", string(res.Rule),
	)
	if res.Winner == WinnerRemote {
		e.write(ctx, remote, summary)
	}
}

// outsideRange looks up a record the ranged local snapshot did not include.
// It returns nil when the id is unknown locally.
func (e *Engine) outsideRange(ctx context.Context, subject id.SubjectID, recordID id.RecordID) (*models.Record, error) {
	rec, err := e.local.Get(ctx, recordID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up local record: %w", err)
	}
	if rec.SubjectID != subject {
		return nil, fmt.Errorf("record id is held locally by another subject")
	}
	return rec, nil
}

func (e *Engine) write(ctx context.Context, rec *models.Record, summary *Summary) {
	if err := e.local.Upsert(ctx, *rec); err != nil {
		e.logger.WarnContext(ctx, "failed to write reconciled record",
			"record_id", rec.ID.String(),
			"error", err,
		)
		summary.Errors = append(summary.Errors, RecordError{RecordID: rec.ID, Message: err.Error()})
		return
	}
	summary.Synced++
}
