// Package events carries upload-completed notifications from the queue to
// whoever reacts to them: the debounced sync trigger and the Kafka forwarder.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
)

// UploadCompleted is published once per task after its durable state is written.
type UploadCompleted struct {
	TaskID      id.TaskID    `json:"taskId"`
	SubjectID   id.SubjectID `json:"subjectId"`
	ObjectKey   string       `json:"objectKey"`
	ContentHash string       `json:"contentHash"`
	CompletedAt time.Time    `json:"completedAt"`
}

// Bus fans each event out to every subscriber channel. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan UploadCompleted
	buffer int
	closed bool
	logger *slog.Logger
}

func NewBus(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{buffer: buffer, logger: logger}
}

// Subscribe returns a channel that receives every later event until Close.
func (b *Bus) Subscribe() <-chan UploadCompleted {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan UploadCompleted, b.buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

func (b *Bus) Publish(ctx context.Context, ev UploadCompleted) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for i, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.WarnContext(ctx, "event subscriber is full, dropping event",
				"subscriber", i,
				"task_id", ev.TaskID.String(),
			)
		}
	}
}

// Close closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
