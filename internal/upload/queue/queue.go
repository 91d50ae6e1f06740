// Package queue drains captured artifacts to remote storage one at a time,
// gated by the permit cache and resilient to connectivity loss.
package queue

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/events"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/admission"
	permitmodels "github.com/aifuun/yorutsuke-v2-sub006/internal/permit/models"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/upload/metrics"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/upload/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	dErrors "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain-errors"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/audit"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/sentinel"
)

var tracer = otel.Tracer("yorutsuke.upload.queue")

// TaskStore is the durable record of every task. The engine writes here
// before it changes its in-memory view.
type TaskStore interface {
	Create(ctx context.Context, task *models.Task) error
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, taskID id.TaskID) error
	List(ctx context.Context) ([]*models.Task, error)
}

// Admitter gates each upload on the subject's quota and charges it after.
type Admitter interface {
	Admit(ctx context.Context, subject id.SubjectID) (admission.Decision, error)
	RecordConsumption(ctx context.Context, subject id.SubjectID) (*permitmodels.LocalUsage, error)
}

type Uploader interface {
	Upload(ctx context.Context, task models.Task, intent id.IntentID) (models.Receipt, error)
}

type Publisher interface {
	Publish(ctx context.Context, ev events.UploadCompleted)
}

// NetworkSource reports connectivity; the queue pauses while offline.
type NetworkSource interface {
	Online() bool
	Subscribe() <-chan bool
}

type Engine struct {
	store     TaskStore
	admitter  Admitter
	uploader  Uploader
	ledger    *intent.Ledger
	publisher Publisher
	network   NetworkSource

	clock        func() time.Time
	logger       *slog.Logger
	metrics      *metrics.Metrics
	pollInterval time.Duration
	backoff      models.Backoff
	maxRetries   int
	deleteSource bool

	mu          sync.Mutex
	tasks       map[id.TaskID]*models.Task
	offline     bool
	quotaPaused bool

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

func WithNetwork(n NetworkSource) Option {
	return func(e *Engine) {
		e.network = n
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

func WithBackoff(b models.Backoff, maxRetries int) Option {
	return func(e *Engine) {
		if len(b) > 0 {
			e.backoff = b
		}
		if maxRetries >= 0 {
			e.maxRetries = maxRetries
		}
	}
}

// WithDeleteSource removes the local artifact after a successful upload.
func WithDeleteSource(enabled bool) Option {
	return func(e *Engine) {
		e.deleteSource = enabled
	}
}

func New(store TaskStore, admitter Admitter, uploader Uploader, ledger *intent.Ledger, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("task store is required")
	}
	if admitter == nil {
		return nil, fmt.Errorf("admitter is required")
	}
	if uploader == nil {
		return nil, fmt.Errorf("uploader is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("intent ledger is required")
	}
	e := &Engine{
		store:        store,
		admitter:     admitter,
		uploader:     uploader,
		ledger:       ledger,
		clock:        time.Now,
		logger:       slog.Default(),
		pollInterval: time.Second,
		backoff:      models.DefaultBackoff,
		maxRetries:   models.DefaultMaxRetries,
		tasks:        make(map[id.TaskID]*models.Task),
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start loads persisted tasks and begins draining. Tasks left uploading by a
// previous process are reset to idle; their intent tokens make the repeat
// upload safe. Tasks that finished but were not yet deleted are purged.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.load(ctx); err != nil {
		return err
	}

	var netCh <-chan bool
	if e.network != nil {
		netCh = e.network.Subscribe()
		e.SetOnline(e.network.Online())
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(runCtx, netCh)
	e.signal()
	return nil
}

// Stop ends the loop and waits for an in-flight attempt to return.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

func (e *Engine) load(ctx context.Context) error {
	stored, err := e.store.List(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load upload tasks")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock()
	for _, t := range stored {
		if t.Status == models.StatusUploaded {
			if err := e.store.Delete(ctx, t.ID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				e.logger.WarnContext(ctx, "failed to purge finished upload task",
					"task_id", t.ID.String(),
					"error", err,
				)
			}
			continue
		}
		if t.Status == models.StatusUploading {
			t.Status = models.StatusIdle
			t.UpdatedAt = now
			if err := e.store.Update(ctx, t); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to recover interrupted task")
			}
			e.logger.InfoContext(ctx, "recovered interrupted upload", "task_id", t.ID.String())
		}
		e.tasks[t.ID] = t
	}
	e.updateDepthLocked()
	return nil
}

// run polls while there is work and sleeps until signalled otherwise.
func (e *Engine) run(ctx context.Context, netCh <-chan bool) {
	defer close(e.done)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	active := true
	for {
		var tick <-chan time.Time
		if active {
			tick = ticker.C
		}
		select {
		case <-ctx.Done():
			return
		case online, ok := <-netCh:
			if !ok {
				netCh = nil
				continue
			}
			e.SetOnline(online)
		case <-e.wake:
			active = true
		case <-tick:
			active = e.tick(ctx)
		}
	}
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// =============================================================================
// Processing
// =============================================================================

// tick performs at most one upload attempt. It reports whether the loop
// should keep polling.
func (e *Engine) tick(ctx context.Context) bool {
	now := e.clock()

	e.mu.Lock()
	if e.offline || e.quotaPaused {
		e.mu.Unlock()
		return false
	}
	e.promoteDueLocked(ctx, now)
	next := e.nextIdleLocked()
	if next == nil {
		waiting := e.hasRetryingLocked()
		e.mu.Unlock()
		return waiting
	}
	task := *next
	e.mu.Unlock()

	decision, err := e.admitter.Admit(ctx, task.SubjectID)
	if err != nil {
		e.logger.WarnContext(ctx, "admission check failed",
			"task_id", task.ID.String(),
			"error", err,
		)
		return true
	}
	if !decision.Allowed {
		if decision.Reason == admission.ReasonQuotaExceeded {
			e.pauseForQuota(ctx)
			return false
		}
		e.logger.DebugContext(ctx, "upload deferred",
			"task_id", task.ID.String(),
			"reason", string(decision.Reason),
			"retry_after", decision.RetryAfter,
		)
		return true
	}

	started, ok := e.markUploading(ctx, task.ID, now)
	if !ok {
		return true
	}
	e.attempt(ctx, started)
	return true
}

func (e *Engine) markUploading(ctx context.Context, taskID id.TaskID, now time.Time) (models.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, ok := e.tasks[taskID]
	if !ok || cur.Status != models.StatusIdle {
		return models.Task{}, false
	}
	next := *cur
	next.Status = models.StatusUploading
	next.UpdatedAt = now
	if err := e.store.Update(ctx, &next); err != nil {
		e.logger.ErrorContext(ctx, "failed to persist upload start",
			"task_id", taskID.String(),
			"error", err,
		)
		return models.Task{}, false
	}
	*cur = next
	e.updateDepthLocked()
	return next, true
}

func (e *Engine) attempt(ctx context.Context, task models.Task) {
	ctx, span := tracer.Start(ctx, "upload.attempt", trace.WithAttributes(
		attribute.String("task_id", task.ID.String()),
		attribute.Int("retry_count", task.RetryCount),
	))
	defer span.End()

	started := time.Now()
	receipt, replayed, err := intent.Do(ctx, e.ledger, task.IntentID(), func(ctx context.Context) (models.Receipt, error) {
		return e.uploader.Upload(ctx, task, task.IntentID())
	})
	e.metrics.ObserveUpload(time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.fail(ctx, task, err)
		return
	}
	span.SetAttributes(attribute.Bool("replayed", replayed))
	span.SetStatus(codes.Ok, "")
	e.complete(ctx, task, receipt)
}

func (e *Engine) complete(ctx context.Context, task models.Task, receipt models.Receipt) {
	// The charge has its own intent so a task re-run after a crash or a
	// failed status write is never charged twice.
	_, _, err := intent.Do(ctx, e.ledger, task.ChargeIntentID(), func(ctx context.Context) (int, error) {
		usage, err := e.admitter.RecordConsumption(ctx, task.SubjectID)
		if err != nil {
			return 0, err
		}
		return usage.CumulativeCount, nil
	})
	if err != nil {
		// Not uploaded until charged: the task goes through the failure path
		// and its next attempt replays the receipt before charging again.
		e.logger.ErrorContext(ctx, "failed to charge quota for upload",
			"task_id", task.ID.String(),
			"error", err,
		)
		e.fail(ctx, task, fmt.Errorf("charge quota: %w", err))
		return
	}

	now := e.clock()
	e.mu.Lock()
	cur, ok := e.tasks[task.ID]
	if !ok {
		e.mu.Unlock()
		e.logger.InfoContext(ctx, "task removed during upload, discarding result", "task_id", task.ID.String())
		return
	}
	done := *cur
	done.Status = models.StatusUploaded
	done.ObjectKey = receipt.ObjectKey
	done.LastError = ""
	done.ErrorKind = ""
	done.NextAttemptAt = time.Time{}
	done.UpdatedAt = now
	if err := e.store.Update(ctx, &done); err != nil {
		// Back to idle: the next attempt replays the recorded receipt.
		cur.Status = models.StatusIdle
		e.mu.Unlock()
		e.logger.ErrorContext(ctx, "failed to persist upload result",
			"task_id", task.ID.String(),
			"error", err,
		)
		return
	}
	*cur = done
	e.mu.Unlock()

	e.metrics.IncrementCompleted()
	if e.publisher != nil {
		e.publisher.Publish(ctx, events.UploadCompleted{
			TaskID:      done.ID,
			SubjectID:   done.SubjectID,
			ObjectKey:   done.ObjectKey,
			ContentHash: done.ContentHash,
			CompletedAt: now,
		})
	}
	if e.deleteSource {
		e.removeSource(ctx, done)
	}
	audit.Log(ctx, e.logger, audit.EventUploadCompleted,
		"subject_id", done.SubjectID.String(),
		"task_id", done.ID.String(),
		"object_key", done.ObjectKey,
	)
	e.forget(ctx, done.ID)
}

// forget drops a finished task from the queue. A row the store fails to
// delete stays marked uploaded and is purged on the next load.
func (e *Engine) forget(ctx context.Context, taskID id.TaskID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.Delete(ctx, taskID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		e.logger.WarnContext(ctx, "failed to delete finished upload task",
			"task_id", taskID.String(),
			"error", err,
		)
	}
	delete(e.tasks, taskID)
	e.updateDepthLocked()
}

func (e *Engine) fail(ctx context.Context, task models.Task, cause error) {
	kind := models.Classify(cause)
	e.metrics.IncrementFailure(string(kind))
	now := e.clock()

	e.mu.Lock()
	cur, ok := e.tasks[task.ID]
	if !ok {
		e.mu.Unlock()
		return
	}
	next := *cur
	next.LastError = cause.Error()
	next.ErrorKind = kind
	next.UpdatedAt = now
	pause := false
	switch {
	case kind == models.ErrorQuota:
		next.Status = models.StatusIdle
		pause = true
	case kind.Retryable() && next.RetryCount < e.maxRetries:
		next.RetryCount++
		next.Status = models.StatusRetrying
		next.NextAttemptAt = now.Add(e.backoff.Delay(next.RetryCount))
	default:
		next.Status = models.StatusFailed
		next.NextAttemptAt = time.Time{}
	}
	if err := e.store.Update(ctx, &next); err != nil {
		cur.Status = models.StatusIdle
		e.mu.Unlock()
		e.logger.ErrorContext(ctx, "failed to persist upload failure",
			"task_id", task.ID.String(),
			"error", err,
		)
		return
	}
	*cur = next
	e.updateDepthLocked()
	e.mu.Unlock()

	switch next.Status {
	case models.StatusRetrying:
		e.metrics.IncrementRetry()
		e.logger.WarnContext(ctx, "upload failed, retry scheduled",
			"task_id", next.ID.String(),
			"error_kind", string(kind),
			"retry_count", next.RetryCount,
			"next_attempt_at", next.NextAttemptAt,
			"error", cause,
		)
	case models.StatusFailed:
		e.logger.ErrorContext(ctx, "upload failed",
			"task_id", next.ID.String(),
			"error_kind", string(kind),
			"retry_count", next.RetryCount,
			"error", cause,
		)
		audit.Log(ctx, e.logger, audit.EventUploadFailed,
			"subject_id", next.SubjectID.String(),
			"task_id", next.ID.String(),
			"error_kind", string(kind),
		)
	}
	if pause {
		e.pauseForQuota(ctx)
	}
}

func (e *Engine) removeSource(ctx context.Context, task models.Task) {
	err := os.Remove(task.SourceLocation)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return
	}
	audit.Log(ctx, e.logger, audit.EventSourceDeleteFailed,
		"subject_id", task.SubjectID.String(),
		"task_id", task.ID.String(),
		"error", err.Error(),
	)
}

func (e *Engine) pauseForQuota(ctx context.Context) {
	e.mu.Lock()
	e.quotaPaused = true
	e.mu.Unlock()
	e.metrics.SetPaused("quota", true)
	e.logger.InfoContext(ctx, "upload queue paused: quota exhausted")
}

func (e *Engine) promoteDueLocked(ctx context.Context, now time.Time) {
	for _, t := range e.tasks {
		if !t.Due(now) {
			continue
		}
		next := *t
		next.Status = models.StatusIdle
		next.UpdatedAt = now
		if err := e.store.Update(ctx, &next); err != nil {
			e.logger.WarnContext(ctx, "failed to promote retrying task",
				"task_id", t.ID.String(),
				"error", err,
			)
			continue
		}
		*t = next
	}
}

// nextIdleLocked returns the oldest idle task, so a deferred task stays at
// the front.
func (e *Engine) nextIdleLocked() *models.Task {
	var oldest *models.Task
	for _, t := range e.tasks {
		if t.Status != models.StatusIdle {
			continue
		}
		if oldest == nil || before(t, oldest) {
			oldest = t
		}
	}
	return oldest
}

func (e *Engine) hasRetryingLocked() bool {
	for _, t := range e.tasks {
		if t.Status == models.StatusRetrying {
			return true
		}
	}
	return false
}

func (e *Engine) updateDepthLocked() {
	counts := map[string]int{
		string(models.StatusIdle):      0,
		string(models.StatusUploading): 0,
		string(models.StatusUploaded):  0,
		string(models.StatusFailed):    0,
		string(models.StatusRetrying):  0,
	}
	for _, t := range e.tasks {
		counts[string(t.Status)]++
	}
	e.metrics.SetDepth(counts)
}

func before(a, b *models.Task) bool {
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.ID.String() < b.ID.String()
}

// =============================================================================
// Commands
// =============================================================================

// Enqueue registers the artifact at path for upload. The same content for
// the same subject is rejected while a task for it is still queued.
func (e *Engine) Enqueue(ctx context.Context, subject id.SubjectID, path string) (*models.Task, error) {
	if _, err := id.ParseSubjectID(subject.String()); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "source artifact is not readable")
	}
	if info.IsDir() {
		return nil, dErrors.New(dErrors.CodeValidation, "source artifact is a directory")
	}
	hash, err := contentHash(path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "failed to hash source artifact")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.tasks {
		if t.SubjectID == subject && t.ContentHash == hash {
			return nil, dErrors.New(dErrors.CodeConflict, "artifact already queued")
		}
	}

	now := e.clock()
	task := &models.Task{
		ID:             id.NewTaskID(),
		SubjectID:      subject,
		SourceLocation: path,
		FileName:       filepath.Base(path),
		ContentHash:    hash,
		Status:         models.StatusIdle,
		EnqueuedAt:     now,
		UpdatedAt:      now,
	}
	if err := e.store.Create(ctx, task); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist upload task")
	}
	e.tasks[task.ID] = task
	e.updateDepthLocked()
	e.signal()

	e.logger.InfoContext(ctx, "artifact enqueued",
		"task_id", task.ID.String(),
		"file_name", task.FileName,
	)
	out := *task
	return &out, nil
}

// Remove drops a task. A task removed mid-upload has its result discarded.
func (e *Engine) Remove(ctx context.Context, taskID id.TaskID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tasks[taskID]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "task not found")
	}
	if err := e.store.Delete(ctx, taskID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete upload task")
	}
	delete(e.tasks, taskID)
	e.updateDepthLocked()
	return nil
}

// Retry re-queues a failed task for one more attempt.
func (e *Engine) Retry(ctx context.Context, taskID id.TaskID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, ok := e.tasks[taskID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "task not found")
	}
	if cur.Status != models.StatusFailed {
		return dErrors.New(dErrors.CodeConflict, "only failed tasks can be retried")
	}
	next := *cur
	next.Status = models.StatusIdle
	next.NextAttemptAt = time.Time{}
	next.UpdatedAt = e.clock()
	if err := e.store.Update(ctx, &next); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist retry")
	}
	*cur = next
	e.updateDepthLocked()
	e.signal()
	return nil
}

// ResumeQuota lifts a quota pause, typically after the permit was refreshed.
func (e *Engine) ResumeQuota() {
	e.mu.Lock()
	was := e.quotaPaused
	e.quotaPaused = false
	e.mu.Unlock()
	if was {
		e.metrics.SetPaused("quota", false)
		e.logger.Info("upload queue resumed after quota pause")
	}
	e.signal()
}

func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	changed := e.offline == online
	e.offline = !online
	e.mu.Unlock()
	if !changed {
		return
	}
	e.metrics.SetPaused("offline", !online)
	e.logger.Info("upload queue connectivity changed", "online", online)
	if online {
		e.signal()
	}
}

// State reports the queue mode. An offline pause wins over a quota pause.
func (e *Engine) State() models.QueueState {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.offline:
		return models.QueuePausedOffline
	case e.quotaPaused:
		return models.QueuePausedQuota
	}
	return models.QueueDraining
}

// Snapshot returns a copy of every task, oldest first.
func (e *Engine) Snapshot() []models.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.Task, 0, len(e.tasks))
	for _, t := range e.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i], out[j]) })
	tasks := make([]models.Task, len(out))
	for i, t := range out {
		tasks[i] = *t
	}
	return tasks
}

func contentHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
