package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/events"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
)

func sampleEvent() events.UploadCompleted {
	return events.UploadCompleted{
		TaskID:      id.NewTaskID(),
		SubjectID:   "user-1",
		ObjectKey:   "uploads/user-1/x/r.webp",
		CompletedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

type fakeProducer struct {
	mu      sync.Mutex
	keys    []string
	values  [][]byte
	failing bool
}

func (p *fakeProducer) Produce(_ context.Context, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing {
		return errors.New("broker down")
	}
	p.keys = append(p.keys, string(key))
	p.values = append(p.values, value)
	return nil
}

func TestForwarder(t *testing.T) {
	p := &fakeProducer{}
	in := make(chan events.UploadCompleted, 2)
	ev := sampleEvent()
	in <- ev
	close(in)

	NewForwarder(p, nil).Run(context.Background(), in)

	require.Len(t, p.keys, 1)
	assert.Equal(t, "user-1", p.keys[0])
	var got events.UploadCompleted
	require.NoError(t, json.Unmarshal(p.values[0], &got))
	assert.Equal(t, ev, got)

	t.Run("produce failure does not stop forwarding", func(t *testing.T) {
		p := &fakeProducer{failing: true}
		in := make(chan events.UploadCompleted, 2)
		in <- sampleEvent()
		in <- sampleEvent()
		close(in)
		assert.NotPanics(t, func() { NewForwarder(p, nil).Run(context.Background(), in) })
	})
}
