package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/events"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/reconcile/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
)

// Syncer is the part of Engine the trigger drives.
type Syncer interface {
	Sync(ctx context.Context, subject id.SubjectID, rng *models.DateRange) (Summary, error)
	SyncWithIntent(ctx context.Context, subject id.SubjectID, rng *models.DateRange, intentID id.IntentID) (Summary, bool, error)
}

// Trigger turns upload completions into sync passes. Each completion restarts
// the settle delay, so a burst of uploads yields one pass once the burst has
// been quiet for the delay. An optional interval adds periodic passes.
type Trigger struct {
	syncer   Syncer
	subject  id.SubjectID
	settle   time.Duration
	interval time.Duration
	logger   *slog.Logger
}

type TriggerOption func(*Trigger)

func WithSettleDelay(d time.Duration) TriggerOption {
	return func(t *Trigger) {
		if d > 0 {
			t.settle = d
		}
	}
}

// WithInterval enables periodic passes. Zero disables them.
func WithInterval(d time.Duration) TriggerOption {
	return func(t *Trigger) {
		t.interval = d
	}
}

func WithTriggerLogger(logger *slog.Logger) TriggerOption {
	return func(t *Trigger) {
		t.logger = logger
	}
}

func NewTrigger(syncer Syncer, subject id.SubjectID, opts ...TriggerOption) *Trigger {
	t := &Trigger{
		syncer:  syncer,
		subject: subject,
		settle:  10 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run consumes completions until ctx is done. A failed debounced pass keeps
// its intent and is retried after another settle delay.
func (t *Trigger) Run(ctx context.Context, completions <-chan events.UploadCompleted) {
	settle := time.NewTimer(t.settle)
	settle.Stop()
	defer settle.Stop()

	var periodic <-chan time.Time
	if t.interval > 0 {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		periodic = ticker.C
	}

	var pending id.IntentID
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-completions:
			if !ok {
				completions = nil
				continue
			}
			if ev.SubjectID != t.subject {
				continue
			}
			if pending == "" {
				pending = id.NewIntentID()
			}
			settle.Reset(t.settle)
		case <-settle.C:
			if pending == "" {
				continue
			}
			summary, replayed, err := t.syncer.SyncWithIntent(ctx, t.subject, nil, pending)
			if err != nil {
				t.logger.WarnContext(ctx, "settled sync pass failed, will retry",
					"subject_id", t.subject.String(),
					"error", err,
				)
				settle.Reset(t.settle)
				continue
			}
			pending = ""
			t.logPass(ctx, "settled", summary, replayed)
		case <-periodic:
			summary, err := t.syncer.Sync(ctx, t.subject, nil)
			if err != nil {
				t.logger.WarnContext(ctx, "periodic sync pass failed",
					"subject_id", t.subject.String(),
					"error", err,
				)
				continue
			}
			t.logPass(ctx, "periodic", summary, false)
		}
	}
}

func (t *Trigger) logPass(ctx context.Context, kind string, s Summary, replayed bool) {
	t.logger.InfoContext(ctx, "sync pass finished",
		"kind", kind,
		"replayed", replayed,
		"synced", s.Synced,
		"conflicts", s.Conflicts,
		"errors", len(s.Errors),
	)
}
