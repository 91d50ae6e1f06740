package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/intent"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.IntentID]intent.Record
}

func New() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.IntentID]intent.Record)}
}

func (s *InMemoryStore) Get(_ context.Context, intentID id.IntentID, now time.Time) (*intent.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[intentID]
	if !ok || !now.Before(rec.ExpiresAt) {
		return nil, sentinel.ErrNotFound
	}
	rec.Result = append([]byte(nil), rec.Result...)
	return &rec, nil
}

func (s *InMemoryStore) Put(_ context.Context, rec intent.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// An expired record may be overwritten; a live one is kept.
	if existing, ok := s.records[rec.IntentID]; ok && rec.CreatedAt.Before(existing.ExpiresAt) {
		return nil
	}
	rec.Result = append([]byte(nil), rec.Result...)
	s.records[rec.IntentID] = rec
	return nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, rec := range s.records {
		if !now.Before(rec.ExpiresAt) {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
