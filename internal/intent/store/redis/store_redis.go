package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent/store"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/sentinel"
)

// RedisStore keeps intent records as keys with a native TTL, so several
// authority instances share one ledger.
type RedisStore struct {
	client *redis.Client
}

func New(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, intentID id.IntentID, now time.Time) (*intent.Record, error) {
	raw, err := s.client.Get(ctx, store.Key(intentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get intent record: %w", err)
	}
	rec, err := store.Decode(intentID, raw)
	if err != nil {
		return nil, err
	}
	if !now.Before(rec.ExpiresAt) {
		return nil, sentinel.ErrNotFound
	}
	return rec, nil
}

// Put uses SET NX so the first writer wins.
func (s *RedisStore) Put(ctx context.Context, rec intent.Record) error {
	ttl := rec.ExpiresAt.Sub(rec.CreatedAt)
	if ttl <= 0 {
		return nil
	}
	raw, err := store.Encode(rec)
	if err != nil {
		return err
	}
	if err := s.client.SetNX(ctx, store.Key(rec.IntentID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("put intent record: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis expires keys itself.
func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
