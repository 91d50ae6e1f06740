// Package watch enqueues capture artifacts dropped into a directory.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/upload/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	dErrors "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain-errors"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, subject id.SubjectID, path string) (*models.Task, error)
}

// Watcher enqueues a file once it has been quiet for the settle window, so a
// file still being written is not hashed half-way.
type Watcher struct {
	dir        string
	subject    id.SubjectID
	enqueuer   Enqueuer
	extensions map[string]bool
	settle     time.Duration
	logger     *slog.Logger
}

type Option func(*Watcher)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithExtensions replaces the accepted extensions (default .webp).
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		w.extensions = make(map[string]bool, len(exts))
		for _, ext := range exts {
			w.extensions[strings.ToLower(ext)] = true
		}
	}
}

func New(dir string, subject id.SubjectID, enqueuer Enqueuer, opts ...Option) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if enqueuer == nil {
		return nil, fmt.Errorf("enqueuer is required")
	}
	w := &Watcher{
		dir:        dir,
		subject:    subject,
		enqueuer:   enqueuer,
		extensions: map[string]bool{".webp": true},
		settle:     500 * time.Millisecond,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run picks up files already present, then watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	pending := make(map[string]time.Time)
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", w.dir, err)
	}
	now := time.Now()
	for _, e := range entries {
		if !e.IsDir() && w.accepts(e.Name()) {
			pending[filepath.Join(w.dir, e.Name())] = now
		}
	}

	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.accepts(event.Name) {
				continue
			}
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				pending[event.Name] = time.Now()
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				delete(pending, event.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "watch error", "dir", w.dir, "error", err)
		case <-ticker.C:
			w.flush(ctx, pending, time.Now())
		}
	}
}

func (w *Watcher) flush(ctx context.Context, pending map[string]time.Time, now time.Time) {
	for path, seen := range pending {
		if now.Sub(seen) < w.settle {
			continue
		}
		delete(pending, path)
		task, err := w.enqueuer.Enqueue(ctx, w.subject, path)
		switch {
		case dErrors.HasCode(err, dErrors.CodeConflict):
			w.logger.DebugContext(ctx, "artifact already queued", "path", path)
		case err != nil:
			w.logger.WarnContext(ctx, "failed to enqueue artifact", "path", path, "error", err)
		default:
			w.logger.InfoContext(ctx, "artifact picked up", "path", path, "task_id", task.ID.String())
		}
	}
}

func (w *Watcher) accepts(name string) bool {
	return w.extensions[strings.ToLower(filepath.Ext(name))]
}
