package taskstore

import (
	"context"
	"sync"
	"time"

	"github.com/you-humble/camstage/internal/domain"

	"github.com/google/uuid"
)

type memoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]domain.Task
}

// NewMemoryTaskStore is a single-process store for local runs and tests.
func NewMemoryTaskStore() *memoryTaskStore {
	return &memoryTaskStore{tasks: make(map[string]domain.Task)}
}

func (s *memoryTaskStore) CreateTask(ctx context.Context, p domain.CreateTaskParams) (string, error) {
	if _, _, err := encodeIntent(p.Intent); err != nil {
		return "", err
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	t := domain.Task{
		ID:        uuid.NewString(),
		Intent:    p.Intent,
		CreatedAt: createdAt,
		State:     domain.Created{},
	}

	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()

	return t.ID, nil
}

func (s *memoryTaskStore) Task(ctx context.Context, id string) (domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	return t, nil
}

func (s *memoryTaskStore) MarkCompleted(
	ctx context.Context,
	id string,
	rawResponse []byte,
	at time.Time,
) (domain.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, false, domain.ErrTaskNotFound
	}
	if _, done := t.Completed(); done {
		return t, false, nil
	}

	t.State = domain.Completed{
		RawResponse: append([]byte(nil), rawResponse...),
		CompletedAt: at,
	}
	s.tasks[id] = t

	return t, true, nil
}

func (s *memoryTaskStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, t := range s.tasks {
		if t.CreatedAt.Before(cutoff) {
			delete(s.tasks, id)
			deleted++
		}
	}

	return deleted, nil
}
