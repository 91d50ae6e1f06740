package intent_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent/store/memory"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/testutil"
)

type receipt struct {
	ObjectKey string `json:"objectKey"`
	Attempt   int    `json:"attempt"`
}

type LedgerSuite struct {
	suite.Suite
	store  *memory.InMemoryStore
	clock  *testutil.Clock
	ledger *intent.Ledger
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.store = memory.New()
	s.clock = testutil.NewClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	var err error
	s.ledger, err = intent.NewLedger(s.store, intent.WithClock(s.clock.Now), intent.WithTTL(24*time.Hour))
	s.Require().NoError(err)
}

func (s *LedgerSuite) TestCheckAndStore() {
	ctx := context.Background()

	_, ok, err := s.ledger.Check(ctx, "upload:1")
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.ledger.Store(ctx, "upload:1", []byte(`"done"`)))
	s.Require().NoError(s.ledger.Store(ctx, "upload:1", []byte(`"other"`)))

	got, ok, err := s.ledger.Check(ctx, "upload:1")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(`"done"`, string(got))
}

func (s *LedgerSuite) TestDo() {
	ctx := context.Background()
	var calls atomic.Int32
	effect := func(context.Context) (receipt, error) {
		n := calls.Add(1)
		return receipt{ObjectKey: "obj/1", Attempt: int(n)}, nil
	}

	s.Run("second call replays the first result", func() {
		first, replayed, err := intent.Do(ctx, s.ledger, "upload:a", effect)
		s.Require().NoError(err)
		s.False(replayed)

		second, replayed, err := intent.Do(ctx, s.ledger, "upload:a", effect)
		s.Require().NoError(err)
		s.True(replayed)
		s.Equal(first, second)
		s.Equal(int32(1), calls.Load())
	})

	s.Run("failure records nothing", func() {
		boom := errors.New("boom")
		_, _, err := intent.Do(ctx, s.ledger, "upload:b", func(context.Context) (receipt, error) {
			return receipt{}, boom
		})
		s.ErrorIs(err, boom)

		got, replayed, err := intent.Do(ctx, s.ledger, "upload:b", effect)
		s.Require().NoError(err)
		s.False(replayed)
		s.Equal("obj/1", got.ObjectKey)
	})

	s.Run("result is forgotten after retention", func() {
		before := calls.Load()
		s.clock.Advance(24 * time.Hour)
		_, replayed, err := intent.Do(ctx, s.ledger, "upload:a", effect)
		s.Require().NoError(err)
		s.False(replayed)
		s.Equal(before+1, calls.Load())
	})
}

func (s *LedgerSuite) TestDoCollapsesConcurrentCalls() {
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := intent.Do(ctx, s.ledger, "sync:1", func(context.Context) (int, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})
			s.NoError(err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	s.Equal(int32(1), calls.Load())
}

func (s *LedgerSuite) TestPurge() {
	ctx := context.Background()
	s.Require().NoError(s.ledger.Store(ctx, id.IntentID("a"), []byte(`1`)))
	s.clock.Advance(12 * time.Hour)
	s.Require().NoError(s.ledger.Store(ctx, id.IntentID("b"), []byte(`2`)))
	s.clock.Advance(13 * time.Hour)

	n, err := s.ledger.Purge(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Equal(1, s.store.Len())
}
