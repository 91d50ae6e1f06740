// Package store persists the client's local permit usage per subject.
package store

import (
	"context"
	"sync"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/permit/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/sentinel"
)

type InMemoryUsageStore struct {
	mu    sync.RWMutex
	usage map[id.SubjectID]models.LocalUsage
}

func NewInMemory() *InMemoryUsageStore {
	return &InMemoryUsageStore{usage: make(map[id.SubjectID]models.LocalUsage)}
}

// Load returns a copy of the stored usage, or sentinel.ErrNotFound.
func (s *InMemoryUsageStore) Load(_ context.Context, subject id.SubjectID) (*models.LocalUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usage[subject]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &u, nil
}

func (s *InMemoryUsageStore) Save(_ context.Context, usage *models.LocalUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[usage.Permit.SubjectID] = *usage
	return nil
}
