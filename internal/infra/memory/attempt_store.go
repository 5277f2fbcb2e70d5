package memory

import (
	"context"
	"sync"

	"classquiz/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]domain.Attempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]domain.Attempt),
	}
}

func (s *AttemptStore) Create(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attempt.ID] = cloneAttempt(attempt)
	return nil
}

func (s *AttemptStore) Get(_ context.Context, id string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[id]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return cloneAttempt(attempt), nil
}

func (s *AttemptStore) Save(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[attempt.ID]; !ok {
		return domain.ErrAttemptNotFound
	}
	s.attempts[attempt.ID] = cloneAttempt(attempt)
	return nil
}

func (s *AttemptStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, id)
	return nil
}

// Len reports how many attempts are in progress.
func (s *AttemptStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attempts)
}

// The answer map is copied so callers never share it with the store.
func cloneAttempt(a domain.Attempt) domain.Attempt {
	answers := make(map[int]string, len(a.Answers))
	for id, label := range a.Answers {
		answers[id] = label
	}
	a.Answers = answers
	return a
}
