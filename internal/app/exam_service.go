package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"classquiz/internal/domain"
	"classquiz/internal/metrics"
	"classquiz/internal/scoring"
	"classquiz/internal/stats"
)

// AttemptRepository abstracts where in-progress attempts live (in-memory, Redis).
type AttemptRepository interface {
	Create(ctx context.Context, attempt domain.Attempt) error
	// Get returns domain.ErrAttemptNotFound for unknown ids.
	Get(ctx context.Context, id string) (domain.Attempt, error)
	Save(ctx context.Context, attempt domain.Attempt) error
	Delete(ctx context.Context, id string) error
}

// BankRepository serves the question bank (from cache/backing file).
type BankRepository interface {
	GetBank(ctx context.Context) (domain.Bank, error)
}

// ResultLog is the append-only store of graded attempts.
type ResultLog interface {
	Append(ctx context.Context, record domain.Record) error
	// LoadAll returns every record in insertion order; a log that was never
	// written yields no records and no error.
	LoadAll(ctx context.Context) ([]domain.Record, error)
}

// AnswerOutcome is returned for every recorded answer. Result is set when the
// deadline had already passed and the attempt was submitted instead.
type AnswerOutcome struct {
	Attempt domain.Attempt
	Result  *domain.Result
}

// ExamService contains the exam use cases.
type ExamService struct {
	attempts AttemptRepository
	bank     BankRepository
	results  ResultLog
	duration time.Duration
	now      func() time.Time
	logger   logrus.FieldLogger
	finalize singleflight.Group

	// closing holds attempts claimed by a submit or discard. A claim is kept
	// when the store refuses to delete a finalized attempt so it is never
	// graded again.
	mu      sync.Mutex
	closing map[string]struct{}
}

func NewExamService(attempts AttemptRepository, bank BankRepository, results ResultLog, duration time.Duration, logger logrus.FieldLogger) *ExamService {
	return NewExamServiceWithClock(attempts, bank, results, duration, logger, time.Now)
}

// NewExamServiceWithClock is used by tests for deterministic deadlines.
func NewExamServiceWithClock(attempts AttemptRepository, bank BankRepository, results ResultLog, duration time.Duration, logger logrus.FieldLogger, now func() time.Time) *ExamService {
	return &ExamService{
		attempts: attempts,
		bank:     bank,
		results:  results,
		duration: duration,
		now:      now,
		logger:   logger,
		closing:  make(map[string]struct{}),
	}
}

// Questions returns the bank in canonical order.
func (s *ExamService) Questions(ctx context.Context) ([]domain.Question, error) {
	bank, err := s.bank.GetBank(ctx)
	if err != nil {
		return nil, err
	}
	return bank.Questions, nil
}

// Start opens a new attempt for learner with a fresh time budget.
func (s *ExamService) Start(ctx context.Context, learner domain.Learner) (domain.Attempt, error) {
	// Users cannot start against a bank that fails to load.
	if _, err := s.bank.GetBank(ctx); err != nil {
		return domain.Attempt{}, err
	}

	now := s.now()
	attempt := domain.Attempt{
		ID:        uuid.NewString(),
		Learner:   learner,
		Answers:   make(map[int]string),
		StartedAt: now,
	}
	if s.duration > 0 {
		attempt.Deadline = now.Add(s.duration)
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return domain.Attempt{}, err
	}
	metrics.AttemptStarted()
	s.logger.WithFields(logrus.Fields{
		"attempt": attempt.ID,
		"name":    learner.Name,
		"class":   learner.Class,
	}).Info("attempt started")
	return attempt, nil
}

// Answer records (or replaces) the selection for one question. A blank label
// clears the answer. Past the deadline the attempt is force-submitted instead.
func (s *ExamService) Answer(ctx context.Context, attemptID string, questionID int, label string) (AnswerOutcome, error) {
	attempt, err := s.getOpen(ctx, attemptID)
	if err != nil {
		return AnswerOutcome{}, err
	}
	if attempt.Expired(s.now()) {
		result, err := s.submit(ctx, attemptID, true)
		if err != nil {
			return AnswerOutcome{}, err
		}
		return AnswerOutcome{Attempt: attempt, Result: &result}, nil
	}

	bank, err := s.bank.GetBank(ctx)
	if err != nil {
		return AnswerOutcome{}, err
	}
	if _, ok := bank.Question(questionID); !ok {
		return AnswerOutcome{}, domain.ErrQuestionNotFound
	}

	if attempt.Answers == nil {
		attempt.Answers = make(map[int]string)
	}
	if selected := domain.NormalizeLabel(label); selected == "" {
		delete(attempt.Answers, questionID)
	} else {
		attempt.Answers[questionID] = selected
	}
	if err := s.attempts.Save(ctx, attempt); err != nil {
		return AnswerOutcome{}, err
	}
	return AnswerOutcome{Attempt: attempt}, nil
}

// Submit grades the attempt and appends it to the result log. An attempt is
// finalized at most once; later calls return domain.ErrAttemptNotFound.
func (s *ExamService) Submit(ctx context.Context, attemptID string) (domain.Result, error) {
	return s.submit(ctx, attemptID, false)
}

// CheckDeadline submits the attempt if its time budget has elapsed and returns
// the forced result, or nil when time remains.
func (s *ExamService) CheckDeadline(ctx context.Context, attemptID string) (*domain.Result, error) {
	attempt, err := s.getOpen(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if !attempt.Expired(s.now()) {
		return nil, nil
	}
	result, err := s.submit(ctx, attemptID, true)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Discard drops an attempt without grading it.
func (s *ExamService) Discard(ctx context.Context, attemptID string) error {
	if !s.claim(attemptID) {
		return domain.ErrAttemptNotFound
	}
	if _, err := s.attempts.Get(ctx, attemptID); err != nil {
		s.release(attemptID)
		return err
	}
	if err := s.attempts.Delete(ctx, attemptID); err != nil {
		s.release(attemptID)
		return err
	}
	s.release(attemptID)
	metrics.AttemptClosed()
	s.logger.WithField("attempt", attemptID).Info("attempt discarded")
	return nil
}

// Grade scores a complete answer map in one step and appends it to the log.
func (s *ExamService) Grade(ctx context.Context, learner domain.Learner, answers map[int]string) (domain.Result, error) {
	bank, err := s.bank.GetBank(ctx)
	if err != nil {
		return domain.Result{}, err
	}
	for id := range answers {
		if _, ok := bank.Question(id); !ok {
			return domain.Result{}, fmt.Errorf("%w: %d", domain.ErrQuestionNotFound, id)
		}
	}
	result := scoring.Grade(bank, answers)
	result.Learner = learner
	result.GradedAt = s.now()
	if err := s.record(ctx, result); err != nil {
		return domain.Result{}, err
	}
	return result, nil
}

// Report reloads the bank and the full log and computes the class snapshot.
// learner is optional; when given its percentile and category rates are included.
func (s *ExamService) Report(ctx context.Context, learner *domain.Result) (domain.Snapshot, error) {
	bank, err := s.bank.GetBank(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	records, err := s.results.LoadAll(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return stats.Build(bank, records, learner), nil
}

// Standing places a score that is not in the log as if it were one more entry:
// its percentile rank and its distance from the mean of that population.
func (s *ExamService) Standing(ctx context.Context, score float64) (percentile, selfVsAverage float64, err error) {
	records, err := s.results.LoadAll(ctx)
	if err != nil {
		return 0, 0, err
	}
	percentile, selfVsAverage = stats.Standing(score, append(stats.Scores(records), score))
	return percentile, selfVsAverage, nil
}

func (s *ExamService) submit(ctx context.Context, attemptID string, forced bool) (domain.Result, error) {
	v, err, _ := s.finalize.Do(attemptID, func() (interface{}, error) {
		if !s.claim(attemptID) {
			return domain.Result{}, domain.ErrAttemptNotFound
		}
		attempt, err := s.attempts.Get(ctx, attemptID)
		if err != nil {
			s.release(attemptID)
			return domain.Result{}, err
		}
		bank, err := s.bank.GetBank(ctx)
		if err != nil {
			s.release(attemptID)
			return domain.Result{}, err
		}

		result := scoring.Grade(bank, attempt.Answers)
		result.AttemptID = attempt.ID
		result.Learner = attempt.Learner
		result.Forced = forced
		result.GradedAt = s.now()

		// The attempt stays in the store when the append fails so the caller can retry.
		if err := s.record(ctx, result); err != nil {
			s.release(attemptID)
			return domain.Result{}, err
		}
		if err := s.attempts.Delete(ctx, attemptID); err != nil {
			// the claim stays so the recorded attempt is never graded twice
			s.logger.WithError(err).WithField("attempt", attemptID).Error("failed to delete finalized attempt")
		} else {
			s.release(attemptID)
		}
		metrics.AttemptClosed()
		return result, nil
	})
	if err != nil {
		return domain.Result{}, err
	}
	return v.(domain.Result), nil
}

// getOpen loads an attempt that no submit or discard has claimed.
func (s *ExamService) getOpen(ctx context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.Lock()
	_, closed := s.closing[attemptID]
	s.mu.Unlock()
	if closed {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return s.attempts.Get(ctx, attemptID)
}

func (s *ExamService) claim(attemptID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.closing[attemptID]; taken {
		return false
	}
	s.closing[attemptID] = struct{}{}
	return true
}

func (s *ExamService) release(attemptID string) {
	s.mu.Lock()
	delete(s.closing, attemptID)
	s.mu.Unlock()
}

func (s *ExamService) record(ctx context.Context, result domain.Result) error {
	rec := domain.Record{
		Timestamp:   result.GradedAt,
		Name:        result.Learner.Name,
		Class:       result.Learner.Class,
		Score:       result.Score,
		Total:       domain.MaxScore,
		CorrectRate: scoring.CorrectRate(result.Score, domain.MaxScore),
		Answers:     result.Answers,
	}
	fields := logrus.Fields{
		"attempt": result.AttemptID,
		"name":    rec.Name,
		"class":   rec.Class,
		"score":   rec.Score,
		"forced":  result.Forced,
	}
	if err := s.results.Append(ctx, rec); err != nil {
		metrics.AppendFailed()
		s.logger.WithFields(fields).WithError(err).Error("failed to append result")
		return fmt.Errorf("%w: %w", domain.ErrAppendFailed, err)
	}
	metrics.AttemptGraded(result.Score, result.Forced)
	s.logger.WithFields(fields).Info("attempt graded")
	return nil
}
