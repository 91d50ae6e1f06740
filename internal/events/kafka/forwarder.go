// Package kafka forwards upload events to a Kafka-compatible broker.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/events"
)

// Producer writes one keyed record to a message broker.
type Producer interface {
	Produce(ctx context.Context, key, value []byte) error
}

// Forwarder publishes upload-completed events to a broker for downstream
// processing, keyed by subject so one subject's events stay ordered.
type Forwarder struct {
	producer Producer
	logger   *slog.Logger
}

func NewForwarder(producer Producer, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{producer: producer, logger: logger}
}

// Run forwards events until the channel closes or ctx is done. A failed
// produce is logged and skipped; the upload itself already succeeded.
func (f *Forwarder) Run(ctx context.Context, in <-chan events.UploadCompleted) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			f.forward(ctx, ev)
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, ev events.UploadCompleted) {
	value, err := json.Marshal(ev)
	if err != nil {
		f.logger.ErrorContext(ctx, "encode upload event", "error", err)
		return
	}
	if err := f.producer.Produce(ctx, []byte(ev.SubjectID.String()), value); err != nil {
		f.logger.WarnContext(ctx, "forward upload event failed",
			"task_id", ev.TaskID.String(),
			"error", err,
		)
	}
}
