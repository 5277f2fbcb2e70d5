package memory

import (
	"context"
	"sync"

	"classquiz/internal/domain"
)

// ResultLog keeps records in process memory; nothing survives a restart.
type ResultLog struct {
	mu      sync.RWMutex
	records []domain.Record
}

func NewResultLog() *ResultLog {
	return &ResultLog{}
}

func (l *ResultLog) Append(_ context.Context, record domain.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, record)
	return nil
}

func (l *ResultLog) LoadAll(_ context.Context) ([]domain.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Record, len(l.records))
	copy(out, l.records)
	return out, nil
}
