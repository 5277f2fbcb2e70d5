package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v4/pgxpool"

	"classquiz/internal/domain"
)

// ResultLog stores records in the quiz_results table. Each append is a single
// INSERT, so concurrent writers never interleave rows.
type ResultLog struct {
	pool *pgxpool.Pool
}

func NewResultLog(pool *pgxpool.Pool) *ResultLog {
	return &ResultLog{pool: pool}
}

func (l *ResultLog) Append(ctx context.Context, record domain.Record) error {
	answers := make(map[string]string, len(record.Answers))
	for id, label := range record.Answers {
		answers[strconv.Itoa(id)] = label
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO quiz_results (taken_at, name, class, score, total, correct_rate, answers) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)`,
		record.Timestamp, record.Name, record.Class, record.Score, record.Total, record.CorrectRate, string(raw),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (l *ResultLog) LoadAll(ctx context.Context) ([]domain.Record, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT taken_at, name, class, score, total, correct_rate, answers::text FROM quiz_results ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var (
			rec domain.Record
			raw string
		)
		if err := rows.Scan(&rec.Timestamp, &rec.Name, &rec.Class, &rec.Score, &rec.Total, &rec.CorrectRate, &raw); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var answers map[string]string
		if err := json.Unmarshal([]byte(raw), &answers); err != nil {
			return nil, fmt.Errorf("%w: answers: %v", domain.ErrCorruptLog, err)
		}
		rec.Answers = make(map[int]string, len(answers))
		for key, label := range answers {
			id, err := strconv.Atoi(key)
			if err != nil {
				return nil, fmt.Errorf("%w: answer key %q", domain.ErrCorruptLog, key)
			}
			if label != "" {
				rec.Answers[id] = label
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
