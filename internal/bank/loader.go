package bank

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"classquiz/internal/domain"
)

// Columns is the header every question bank must carry (in any order).
var Columns = []string{"id", "question", "option_a", "option_b", "option_c", "answer", "category", "difficulty"}

// ValidationError describes a fatal problem with one row of the bank.
type ValidationError struct {
	Row    int // 1-based data row, 0 for header/bank level problems
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("question bank: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("question bank row %d: %s: %s", e.Row, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return domain.ErrInvalidBank }

// rawRow holds the sanitized text of one row before validation.
type rawRow map[string]string

// Parse reads a CSV question bank. Blank text fields are coerced to "";
// unknown difficulty, bad answer keys and bad ids are fatal.
func Parse(r io.Reader) (domain.Bank, error) {
	rows, err := sanitize(r)
	if err != nil {
		return domain.Bank{}, err
	}
	return validate(rows)
}

// LoadFile parses the bank at path.
func LoadFile(path string) (domain.Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Bank{}, fmt.Errorf("read question bank: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// sanitize is the lenient pass: it only enforces the header and trims every field.
func sanitize(r io.Reader) ([]rawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ValidationError{Field: "header", Reason: "empty file"}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidBank, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range Columns {
		if _, ok := index[col]; !ok {
			return nil, &ValidationError{Field: col, Reason: "missing column"}
		}
	}

	var rows []rawRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidBank, err)
		}
		row := make(rawRow, len(Columns))
		for _, col := range Columns {
			if i := index[col]; i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// validate is the strict pass over the fields grading depends on.
func validate(rows []rawRow) (domain.Bank, error) {
	if len(rows) == 0 {
		return domain.Bank{}, &ValidationError{Field: "questions", Reason: "bank has no questions"}
	}

	seen := make(map[int]int, len(rows))
	questions := make([]domain.Question, 0, len(rows))
	for i, row := range rows {
		n := i + 1
		id, err := strconv.Atoi(row["id"])
		if err != nil || id <= 0 {
			return domain.Bank{}, &ValidationError{Row: n, Field: "id", Reason: fmt.Sprintf("%q is not a positive integer", row["id"])}
		}
		if prev, dup := seen[id]; dup {
			return domain.Bank{}, &ValidationError{Row: n, Field: "id", Reason: fmt.Sprintf("duplicate of row %d", prev)}
		}
		seen[id] = n

		difficulty, ok := domain.ParseDifficulty(row["difficulty"])
		if !ok {
			return domain.Bank{}, &ValidationError{Row: n, Field: "difficulty", Reason: fmt.Sprintf("unknown tier %q", row["difficulty"])}
		}

		q := domain.Question{
			ID:         id,
			Prompt:     row["question"],
			OptionA:    row["option_a"],
			OptionB:    row["option_b"],
			OptionC:    row["option_c"],
			Answer:     domain.NormalizeLabel(row["answer"]),
			Category:   row["category"],
			Difficulty: difficulty,
		}
		if !offers(q, q.Answer) {
			return domain.Bank{}, &ValidationError{Row: n, Field: "answer", Reason: fmt.Sprintf("%q is not an offered option", row["answer"])}
		}
		questions = append(questions, q)
	}

	return domain.Bank{Questions: questions, Fingerprint: Fingerprint(questions)}, nil
}

func offers(q domain.Question, label string) bool {
	for _, opt := range q.Options() {
		if opt.Label == label {
			return true
		}
	}
	return false
}

// Fingerprint identifies the graded shape of a bank: ids, answer keys and tiers in order.
func Fingerprint(questions []domain.Question) string {
	h := sha256.New()
	for _, q := range questions {
		fmt.Fprintf(h, "%d|%s|%s\n", q.ID, q.Answer, q.Difficulty)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// FileLoader loads the bank from a CSV file on every call.
type FileLoader struct {
	path string
}

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

func (l *FileLoader) LoadBank(_ context.Context) (domain.Bank, error) {
	return LoadFile(l.path)
}
