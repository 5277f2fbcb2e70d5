// Package csvlog persists graded attempts as rows of a CSV file.
//
// File layout: timestamp,name,class,score,total,correct_rate,q1,...,qN with one
// answer column per question of the bank. Appends go through a single writer
// goroutine and hold an exclusive lock on "<path>.lock"; reads hold a shared
// lock, so rows are never observed half written, even across processes.
package csvlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"classquiz/internal/domain"
)

// TimestampLayout is the format of the timestamp column.
const TimestampLayout = "2006-01-02 15:04:05"

var fixedColumns = []string{"timestamp", "name", "class", "score", "total", "correct_rate"}

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("result log closed")

type appendRequest struct {
	record domain.Record
	errc   chan error
}

// ResultLog is a CSV-file backed app.ResultLog.
type ResultLog struct {
	path     string
	columns  []int
	header   []string
	requests chan appendRequest
	quit     chan struct{}
	done     chan struct{}
	stop     sync.Once
}

// Open starts the writer for the log at path. questionIDs fixes the answer
// columns, in bank order.
func Open(path string, questionIDs []int) *ResultLog {
	header := append([]string(nil), fixedColumns...)
	for _, id := range questionIDs {
		header = append(header, column(id))
	}
	l := &ResultLog{
		path:     path,
		columns:  append([]int(nil), questionIDs...),
		header:   header,
		requests: make(chan appendRequest),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go l.writer()
	return l
}

// Close stops the writer after the row in progress, if any.
func (l *ResultLog) Close() error {
	l.stop.Do(func() { close(l.quit) })
	<-l.done
	return nil
}

// Append queues record for the writer and waits for it to reach the file.
// Once queued, the write is not abandoned when ctx is cancelled.
func (l *ResultLog) Append(ctx context.Context, record domain.Record) error {
	req := appendRequest{record: record, errc: make(chan error, 1)}
	select {
	case l.requests <- req:
	case <-l.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.errc
}

func (l *ResultLog) writer() {
	defer close(l.done)
	for {
		select {
		case req := <-l.requests:
			req.errc <- l.write(req.record)
		case <-l.quit:
			return
		}
	}
}

func (l *ResultLog) write(record domain.Record) error {
	for id := range record.Answers {
		if !l.hasColumn(id) {
			return fmt.Errorf("%w: no column for question %d", domain.ErrBankMismatch, id)
		}
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create result log dir: %w", err)
	}
	lock := flock.New(l.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock result log: %w", err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open result log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat result log: %w", err)
	}
	if info.Size() == 0 {
		if _, err := io.WriteString(f, quoteAll(l.header)); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	} else if err := l.checkHeader(f); err != nil {
		return err
	}

	if _, err := io.WriteString(f, quoteAll(l.row(record))); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	return f.Sync()
}

// checkHeader refuses to append to a log written for a different bank layout.
func (l *ResultLog) checkHeader(f *os.File) error {
	existing, err := csv.NewReader(io.NewSectionReader(f, 0, 1<<20)).Read()
	if err != nil {
		return fmt.Errorf("%w: header: %v", domain.ErrCorruptLog, err)
	}
	if strings.Join(existing, ",") != strings.Join(l.header, ",") {
		return fmt.Errorf("%w: log has %d answer columns, bank has %d", domain.ErrBankMismatch, len(existing)-len(fixedColumns), len(l.columns))
	}
	return nil
}

func (l *ResultLog) row(r domain.Record) []string {
	fields := []string{
		r.Timestamp.Format(TimestampLayout),
		r.Name,
		r.Class,
		formatFloat(r.Score),
		formatFloat(r.Total),
		formatFloat(r.CorrectRate),
	}
	for _, id := range l.columns {
		fields = append(fields, r.Answers[id])
	}
	return fields
}

func (l *ResultLog) hasColumn(id int) bool {
	for _, c := range l.columns {
		if c == id {
			return true
		}
	}
	return false
}

// LoadAll reads every row. A log that does not exist yet yields no records.
// Answer columns are matched by name, not position.
func (l *ResultLog) LoadAll(_ context.Context) ([]domain.Record, error) {
	if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	lock := flock.New(l.path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock result log: %w", err)
	}
	defer lock.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open result log: %w", err)
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) ([]domain.Record, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", domain.ErrCorruptLog, err)
	}
	if len(header) < len(fixedColumns) {
		return nil, fmt.Errorf("%w: header has %d columns", domain.ErrCorruptLog, len(header))
	}
	for i, name := range fixedColumns {
		if header[i] != name {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", domain.ErrCorruptLog, i+1, header[i], name)
		}
	}
	ids := make([]int, 0, len(header)-len(fixedColumns))
	for _, name := range header[len(fixedColumns):] {
		id, err := strconv.Atoi(strings.TrimPrefix(name, "q"))
		if !strings.HasPrefix(name, "q") || err != nil {
			return nil, fmt.Errorf("%w: unexpected column %q", domain.ErrCorruptLog, name)
		}
		ids = append(ids, id)
	}

	var records []domain.Record
	for line := 2; ; line++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCorruptLog, err)
		}
		rec, err := parseRow(fields, ids)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrCorruptLog, line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(fields []string, ids []int) (domain.Record, error) {
	ts, err := parseTimestamp(fields[0])
	if err != nil {
		return domain.Record{}, err
	}
	var nums [3]float64
	for i := range nums {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[3+i]), 64)
		if err != nil {
			return domain.Record{}, fmt.Errorf("%s: %v", fixedColumns[3+i], err)
		}
		nums[i] = v
	}

	answers := make(map[int]string, len(ids))
	for i, id := range ids {
		if v := strings.TrimSpace(fields[len(fixedColumns)+i]); v != "" {
			answers[id] = v
		}
	}
	return domain.Record{
		Timestamp:   ts,
		Name:        fields[1],
		Class:       fields[2],
		Score:       nums[0],
		Total:       nums[1],
		CorrectRate: nums[2],
		Answers:     answers,
	}, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if ts, err := time.ParseInLocation(TimestampLayout, raw, time.Local); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q", raw)
	}
	return ts, nil
}

func column(id int) string {
	return "q" + strconv.Itoa(id)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// quoteAll renders one CSV line with every field quoted.
func quoteAll(fields []string) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	return b.String()
}
