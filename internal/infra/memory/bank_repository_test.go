package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"classquiz/internal/domain"
)

func TestBankRepositoryCaches(t *testing.T) {
	loader := &countingLoader{BankLoader: NewStaticBankLoader(sampleBank())}
	repo := NewBankRepository(loader, time.Minute)

	if _, err := repo.GetBank(context.Background()); err != nil {
		t.Fatalf("get bank: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetBank(context.Background()); err != nil {
		t.Fatalf("get bank 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestBankRepositoryReloadsAfterTTL(t *testing.T) {
	loader := &countingLoader{BankLoader: NewStaticBankLoader(sampleBank())}
	repo := NewBankRepository(loader, time.Minute)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetBank(context.Background())
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetBank(context.Background())
	if loader.calls != 2 {
		t.Fatalf("expected reload after expiry, loader calls %d", loader.calls)
	}
}

func TestBankRepositoryDoesNotCacheErrors(t *testing.T) {
	loader := &countingLoader{BankLoader: NewStaticBankLoader(domain.Bank{})}
	repo := NewBankRepository(loader, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := repo.GetBank(context.Background()); !errors.Is(err, domain.ErrInvalidBank) {
			t.Fatalf("expected ErrInvalidBank, got %v", err)
		}
	}
	if loader.calls != 2 {
		t.Fatalf("expected every failed load to retry, calls %d", loader.calls)
	}
}

type countingLoader struct {
	BankLoader
	calls int
}

func (l *countingLoader) LoadBank(ctx context.Context) (domain.Bank, error) {
	l.calls++
	return l.BankLoader.LoadBank(ctx)
}

func sampleBank() domain.Bank {
	return domain.Bank{
		Questions: []domain.Question{
			{
				ID:         1,
				Prompt:     "What is 2 + 2?",
				OptionA:    "3",
				OptionB:    "4",
				OptionC:    "5",
				Answer:     "b",
				Category:   "arithmetic",
				Difficulty: domain.Easy,
			},
		},
		Fingerprint: "sample",
	}
}
