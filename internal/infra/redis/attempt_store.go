package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"classquiz/internal/domain"
)

// AttemptStore keeps in-progress attempts in Redis so any instance can serve
// the next answer of a learner. Each attempt is a JSON value:
//
//	SET quiz:attempt:{id} {attempt} EX ttl
//
// The TTL is refreshed on every save; it should outlive the exam duration.
type AttemptStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAttemptStore(client *redis.Client, ttl time.Duration) *AttemptStore {
	return &AttemptStore{client: client, ttl: ttl}
}

func (s *AttemptStore) Create(ctx context.Context, attempt domain.Attempt) error {
	raw, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(attempt.ID), raw, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	if !ok {
		return fmt.Errorf("create attempt: id %s already exists", attempt.ID)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, id string) (domain.Attempt, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("get attempt: %w", err)
	}
	var attempt domain.Attempt
	if err := json.Unmarshal(raw, &attempt); err != nil {
		return domain.Attempt{}, fmt.Errorf("unmarshal attempt: %w", err)
	}
	if attempt.Answers == nil {
		attempt.Answers = make(map[int]string)
	}
	return attempt, nil
}

func (s *AttemptStore) Save(ctx context.Context, attempt domain.Attempt) error {
	raw, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	ok, err := s.client.SetXX(ctx, s.key(attempt.ID), raw, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	if !ok {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func (s *AttemptStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *AttemptStore) key(id string) string {
	return "quiz:attempt:" + id
}
