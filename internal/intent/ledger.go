// Package intent records the outcome of side effects keyed by a caller-chosen
// intent token so a retried operation returns the first result instead of
// repeating the effect.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	dErrors "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain-errors"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/audit"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/sentinel"
)

// DefaultTTL bounds how long a recorded result is replayed.
const DefaultTTL = 24 * time.Hour

// Record is one stored outcome.
type Record struct {
	IntentID  id.IntentID
	Result    []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store persists records. Get returns sentinel.ErrNotFound for absent or
// expired records. Put keeps the first record written for an id.
type Store interface {
	Get(ctx context.Context, intent id.IntentID, now time.Time) (*Record, error)
	Put(ctx context.Context, rec Record) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

type Ledger struct {
	store  Store
	ttl    time.Duration
	clock  func() time.Time
	logger *slog.Logger
	group  singleflight.Group
}

type Option func(*Ledger)

func WithTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		l.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func NewLedger(store Store, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("intent store is required")
	}
	l := &Ledger{
		store:  store,
		ttl:    DefaultTTL,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Check returns the stored result for intent, if any.
func (l *Ledger) Check(ctx context.Context, intent id.IntentID) ([]byte, bool, error) {
	rec, err := l.store.Get(ctx, intent, l.clock())
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read intent record")
	}
	return rec.Result, true, nil
}

// Store records result for intent. A second Store for the same id keeps the
// first result.
func (l *Ledger) Store(ctx context.Context, intent id.IntentID, result []byte) error {
	now := l.clock()
	err := l.store.Put(ctx, Record{
		IntentID:  intent,
		Result:    result,
		CreatedAt: now,
		ExpiresAt: now.Add(l.ttl),
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store intent record")
	}
	return nil
}

// Purge removes expired records. Stores with native expiry report 0.
func (l *Ledger) Purge(ctx context.Context) (int, error) {
	n, err := l.store.DeleteExpired(ctx, l.clock())
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge intent records")
	}
	return n, nil
}

// RunJanitor purges on every interval tick until ctx is done.
func (l *Ledger) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.Purge(ctx)
			if err != nil {
				l.logger.WarnContext(ctx, "intent purge failed", "error", err)
				continue
			}
			if n > 0 {
				l.logger.DebugContext(ctx, "purged expired intents", "count", n)
			}
		}
	}
}

type outcome struct {
	value    []byte
	replayed bool
}

// Do runs fn at most once per intent within the retention window. A recorded
// result is decoded and returned with replayed=true. A failed fn records
// nothing, so the caller may retry under the same intent. Concurrent calls
// with one intent share a single execution.
func Do[T any](ctx context.Context, l *Ledger, intent id.IntentID, fn func(context.Context) (T, error)) (T, bool, error) {
	var zero T
	v, err, _ := l.group.Do(intent.String(), func() (any, error) {
		cached, ok, err := l.Check(ctx, intent)
		if err != nil {
			return nil, err
		}
		if ok {
			return outcome{value: cached, replayed: true}, nil
		}

		result, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode intent result: %w", err)
		}
		// The effect already happened: a failed write is logged, not returned,
		// so callers don't repeat it.
		if err := l.Store(ctx, intent, raw); err != nil {
			l.logger.WarnContext(ctx, "intent result not recorded",
				"intent_id", intent.String(),
				"error", err,
			)
		}
		return outcome{value: raw}, nil
	})
	if err != nil {
		return zero, false, err
	}

	out := v.(outcome)
	var result T
	if err := json.Unmarshal(out.value, &result); err != nil {
		return zero, false, dErrors.Wrap(err, dErrors.CodeIntegrity, "stored intent result is unreadable")
	}
	if out.replayed {
		audit.Log(ctx, l.logger, audit.EventIntentReplayed, "intent_id", intent.String())
	}
	return result, out.replayed, nil
}
