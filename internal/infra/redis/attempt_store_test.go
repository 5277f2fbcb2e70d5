package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"classquiz/internal/domain"
)

func TestAttemptStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewAttemptStore(newClient(mr), time.Hour)
	started := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	attempt := domain.Attempt{
		ID:        "a1",
		Learner:   domain.Learner{Name: "Ana", Class: "7B"},
		Answers:   map[int]string{},
		StartedAt: started,
		Deadline:  started.Add(30 * time.Minute),
	}

	if err := store.Create(ctx, attempt); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("quiz:attempt:a1") {
		t.Fatalf("expected redis key to be set")
	}
	if err := store.Create(ctx, attempt); err == nil {
		t.Fatalf("expected duplicate create to fail")
	}

	attempt.Answers[3] = "c"
	if err := store.Save(ctx, attempt); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Answers[3] != "c" || got.Learner.Class != "7B" || !got.Deadline.Equal(attempt.Deadline) {
		t.Fatalf("unexpected attempt %+v", got)
	}

	if err := store.Delete(ctx, "a1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("quiz:attempt:a1") {
		t.Fatalf("expected redis key to be removed")
	}
	if _, err := store.Get(ctx, "a1"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
	if err := store.Save(ctx, attempt); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected save of deleted attempt to fail, got %v", err)
	}
}

func TestAttemptStoreExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewAttemptStore(newClient(mr), time.Minute)
	_ = store.Create(context.Background(), domain.Attempt{ID: "a2"})
	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(context.Background(), "a2"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt to expire, got %v", err)
	}
}
