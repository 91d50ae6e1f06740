// Package store persists upload tasks.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/upload/models"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
	"github.com/aifuun/yorutsuke-v2-sub006/pkg/platform/sentinel"
)

type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[id.TaskID]models.Task
}

func NewInMemory() *InMemoryTaskStore {
	return &InMemoryTaskStore{tasks: make(map[id.TaskID]models.Task)}
}

func (s *InMemoryTaskStore) Create(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return sentinel.ErrConflict
	}
	s.tasks[task.ID] = *task
	return nil
}

func (s *InMemoryTaskStore) Update(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.tasks[task.ID] = *task
	return nil
}

func (s *InMemoryTaskStore) Delete(_ context.Context, taskID id.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[taskID]; !exists {
		return sentinel.ErrNotFound
	}
	delete(s.tasks, taskID)
	return nil
}

func (s *InMemoryTaskStore) Get(_ context.Context, taskID id.TaskID) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &t, nil
}

// List returns all tasks oldest-enqueued first.
func (s *InMemoryTaskStore) List(_ context.Context) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}
