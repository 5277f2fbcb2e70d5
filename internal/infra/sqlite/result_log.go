// Package sqlite stores the result log in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"classquiz/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS quiz_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    taken_at TEXT NOT NULL,
    name TEXT NOT NULL,
    class TEXT NOT NULL,
    score REAL NOT NULL,
    total REAL NOT NULL,
    correct_rate REAL NOT NULL,
    answers TEXT NOT NULL
);
`

// ResultLog appends every record in its own INSERT, which SQLite serializes.
type ResultLog struct {
	db *sql.DB
}

func Open(dbPath string) (*ResultLog, error) {
	// busy_timeout lets a second process wait for the write lock instead of failing.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &ResultLog{db: db}, nil
}

func (l *ResultLog) Close() error {
	return l.db.Close()
}

func (l *ResultLog) Append(ctx context.Context, record domain.Record) error {
	answers, err := encodeAnswers(record.Answers)
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx,
		"INSERT INTO quiz_results (taken_at, name, class, score, total, correct_rate, answers) VALUES (?, ?, ?, ?, ?, ?, ?)",
		record.Timestamp.UTC().Format(time.RFC3339Nano), record.Name, record.Class,
		record.Score, record.Total, record.CorrectRate, answers,
	)
	return err
}

func (l *ResultLog) LoadAll(ctx context.Context) ([]domain.Record, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT taken_at, name, class, score, total, correct_rate, answers FROM quiz_results ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var (
			rec     domain.Record
			takenAt string
			answers string
		)
		if err := rows.Scan(&takenAt, &rec.Name, &rec.Class, &rec.Score, &rec.Total, &rec.CorrectRate, &answers); err != nil {
			return nil, err
		}
		rec.Timestamp, err = time.Parse(time.RFC3339Nano, takenAt)
		if err != nil {
			return nil, fmt.Errorf("%w: taken_at %q", domain.ErrCorruptLog, takenAt)
		}
		rec.Answers, err = decodeAnswers(answers)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Answers are stored as a JSON object keyed by question id.
func encodeAnswers(answers map[int]string) (string, error) {
	out := make(map[string]string, len(answers))
	for id, label := range answers {
		out[strconv.Itoa(id)] = label
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal answers: %w", err)
	}
	return string(raw), nil
}

func decodeAnswers(raw string) (map[int]string, error) {
	var in map[string]string
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, fmt.Errorf("%w: answers: %v", domain.ErrCorruptLog, err)
	}
	answers := make(map[int]string, len(in))
	for key, label := range in {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: answer key %q", domain.ErrCorruptLog, key)
		}
		if label != "" {
			answers[id] = label
		}
	}
	return answers, nil
}
