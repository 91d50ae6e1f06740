package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/events"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/reconcile/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
)

type recordingSyncer struct {
	mu       sync.Mutex
	intents  []id.IntentID
	periodic int
	failNext bool
}

func (r *recordingSyncer) Sync(context.Context, id.SubjectID, *models.DateRange) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.periodic++
	return Summary{}, nil
}

func (r *recordingSyncer) SyncWithIntent(_ context.Context, _ id.SubjectID, _ *models.DateRange, intentID id.IntentID) (Summary, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, intentID)
	if r.failNext {
		r.failNext = false
		return Summary{}, false, errors.New("remote unavailable")
	}
	return Summary{}, false, nil
}

func (r *recordingSyncer) settled() []id.IntentID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]id.IntentID(nil), r.intents...)
}

func (r *recordingSyncer) periodicCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.periodic
}

func completion(subject id.SubjectID) events.UploadCompleted {
	return events.UploadCompleted{TaskID: id.NewTaskID(), SubjectID: subject}
}

func runTrigger(t *testing.T, tr *Trigger, in <-chan events.UploadCompleted) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.Run(ctx, in)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestTrigger_CollapsesBurst(t *testing.T) {
	syncer := &recordingSyncer{}
	in := make(chan events.UploadCompleted, 8)
	runTrigger(t, NewTrigger(syncer, subject, WithSettleDelay(50*time.Millisecond)), in)

	for range 3 {
		in <- completion(subject)
	}
	in <- completion("user-someone-else")

	require.Eventually(t, func() bool { return len(syncer.settled()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, syncer.settled(), 1, "one pass per burst")
}

func TestTrigger_RetriesFailedPassWithSameIntent(t *testing.T) {
	syncer := &recordingSyncer{failNext: true}
	in := make(chan events.UploadCompleted, 1)
	runTrigger(t, NewTrigger(syncer, subject, WithSettleDelay(20*time.Millisecond)), in)

	in <- completion(subject)

	require.Eventually(t, func() bool { return len(syncer.settled()) == 2 }, time.Second, 5*time.Millisecond)
	got := syncer.settled()
	assert.Equal(t, got[0], got[1])
}

func TestTrigger_PeriodicPasses(t *testing.T) {
	syncer := &recordingSyncer{}
	runTrigger(t, NewTrigger(syncer, subject, WithInterval(20*time.Millisecond)), nil)

	require.Eventually(t, func() bool { return syncer.periodicCount() >= 2 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, syncer.settled())
}
