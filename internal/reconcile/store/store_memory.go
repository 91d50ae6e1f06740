// Package store keeps the local replica of a subject's records.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/reconcile/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/sentinel"
)

type InMemoryRecordStore struct {
	mu      sync.RWMutex
	records map[id.RecordID]models.Record
}

func NewInMemory() *InMemoryRecordStore {
	return &InMemoryRecordStore{records: make(map[id.RecordID]models.Record)}
}

// List returns subject's records within rng ordered by date then id.
func (s *InMemoryRecordStore) List(_ context.Context, subject id.SubjectID, rng *models.DateRange) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Record
	for _, r := range s.records {
		if r.SubjectID == subject && rng.Contains(r.Date) {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out, nil
}

func (s *InMemoryRecordStore) Upsert(_ context.Context, rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *InMemoryRecordStore) Get(_ context.Context, recordID id.RecordID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &r, nil
}

func sortRecords(recs []models.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Date != recs[j].Date {
			return recs[i].Date < recs[j].Date
		}
		return recs[i].ID < recs[j].ID
	})
}
