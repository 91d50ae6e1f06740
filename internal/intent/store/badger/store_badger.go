package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent/store"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/sentinel"
)

// BadgerStore is the agent's embedded intent ledger. Entries carry a native
// TTL; the envelope's expiry is checked too since badger's TTL has
// second granularity.
type BadgerStore struct {
	db *badger.DB
}

func New(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) Get(_ context.Context, intentID id.IntentID, now time.Time) (*intent.Record, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(store.Key(intentID)))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
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

func (s *BadgerStore) Put(_ context.Context, rec intent.Record) error {
	ttl := rec.ExpiresAt.Sub(rec.CreatedAt)
	if ttl <= 0 {
		return nil
	}
	raw, err := store.Encode(rec)
	if err != nil {
		return err
	}
	key := []byte(store.Key(rec.IntentID))
	err = s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case err == nil:
			existing, derr := decodeItem(rec.IntentID, item)
			if derr == nil && rec.CreatedAt.Before(existing.ExpiresAt) {
				return nil
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.SetEntry(badger.NewEntry(key, raw).WithTTL(ttl))
	})
	if err != nil {
		return fmt.Errorf("put intent record: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: badger drops expired entries during compaction.
func (s *BadgerStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func decodeItem(intentID id.IntentID, item *badger.Item) (*intent.Record, error) {
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return store.Decode(intentID, raw)
}
