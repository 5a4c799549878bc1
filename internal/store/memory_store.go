package store

import (
	"context"
	"sync"
	"time"

	"github.com/tunegift/api/internal/model"
)

// MemoryTaskStore is a process-local TaskStore for tests and Redis-less
// development. Entries carry the same TTL as the Redis store, applied
// lazily on read.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*memoryTaskEntry
}

type memoryTaskEntry struct {
	task      *model.GenerationTask
	expiresAt time.Time
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]*memoryTaskEntry)}
}

func (s *MemoryTaskStore) Create(_ context.Context, task *model.GenerationTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.TaskID] = &memoryTaskEntry{
		task:      task.Clone(),
		expiresAt: time.Now().Add(taskTTL),
	}
	return nil
}

func (s *MemoryTaskStore) Get(_ context.Context, taskID string) (*model.GenerationTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.tasks[taskID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrTaskNotFound
	}
	return entry.task.Clone(), nil
}

func (s *MemoryTaskStore) Update(_ context.Context, taskID string, mutate func(*model.GenerationTask) error) (*model.GenerationTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tasks[taskID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrTaskNotFound
	}

	task := entry.task.Clone()
	if err := mutate(task); err != nil {
		return nil, err
	}
	s.tasks[taskID] = &memoryTaskEntry{
		task:      task,
		expiresAt: time.Now().Add(taskTTL),
	}
	return task.Clone(), nil
}
