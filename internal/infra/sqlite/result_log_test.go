package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"classquiz/internal/domain"
)

func openTestLog(t *testing.T) *ResultLog {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestResultLogRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	records, err := l.LoadAll(ctx)
	if err != nil || len(records) != 0 {
		t.Fatalf("expected empty log, got %v %v", records, err)
	}

	taken := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	in := domain.Record{
		Timestamp:   taken,
		Name:        "Ana",
		Class:       "7B",
		Score:       42.9,
		Total:       100,
		CorrectRate: 42.9,
		Answers:     map[int]string{4: "a", 2: ""},
	}
	if err := l.Append(ctx, in); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Append(ctx, domain.Record{Timestamp: taken, Name: "Ben", Score: 10, Total: 100}); err != nil {
		t.Fatalf("append: %v", err)
	}

	records, err = l.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 2 || records[0].Name != "Ana" || records[1].Name != "Ben" {
		t.Fatalf("expected insertion order, got %+v", records)
	}
	got := records[0]
	if got.Score != 42.9 || !got.Timestamp.Equal(taken) || got.Answers[4] != "a" {
		t.Fatalf("unexpected record %+v", got)
	}
	if _, ok := got.Answers[2]; ok {
		t.Fatalf("blank answer should read back as unanswered")
	}
}

func TestResultLogConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := l.Append(ctx, domain.Record{Timestamp: time.Now(), Name: fmt.Sprint(i), Score: 1, Total: 100}); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	records, err := l.LoadAll(ctx)
	if err != nil || len(records) != 20 {
		t.Fatalf("expected 20 records, got %d %v", len(records), err)
	}
}

func TestResultLogCorruptAnswers(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)
	if _, err := l.db.Exec(`INSERT INTO quiz_results (taken_at, name, class, score, total, correct_rate, answers) VALUES (?, 'x', 'y', 1, 100, 1, 'not json')`,
		time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := l.LoadAll(ctx); !errors.Is(err, domain.ErrCorruptLog) {
		t.Fatalf("expected ErrCorruptLog, got %v", err)
	}
}
