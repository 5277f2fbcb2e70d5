package domain

import (
	"strings"
	"time"
)

// Difficulty is the weighting tier of a question.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Difficulties lists the tiers in reporting order.
var Difficulties = []Difficulty{Easy, Medium, Hard}

// Weight returns the integer base weight of the tier (0 for unknown tiers).
func (d Difficulty) Weight() int {
	switch d {
	case Easy:
		return 1
	case Medium:
		return 2
	case Hard:
		return 3
	}
	return 0
}

// ParseDifficulty resolves a raw tier label. The second return is false for unknown tiers.
func ParseDifficulty(raw string) (Difficulty, bool) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(raw)))
	if d.Weight() == 0 {
		return "", false
	}
	return d, true
}

// OptionLabels are the labels a question may offer, in display order.
var OptionLabels = []string{"a", "b", "c"}

// NormalizeLabel trims and lowercases an option label for comparison.
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// Option is one offered answer of a question.
type Option struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Question is an immutable multiple-choice question with exactly one correct label.
type Question struct {
	ID         int        `json:"id"`
	Prompt     string     `json:"question"`
	OptionA    string     `json:"optionA"`
	OptionB    string     `json:"optionB"`
	OptionC    string     `json:"optionC"`
	Answer     string     `json:"answer"`
	Category   string     `json:"category"`
	Difficulty Difficulty `json:"difficulty"`
}

// Options returns the labels whose text is non-empty.
func (q Question) Options() []Option {
	texts := []string{q.OptionA, q.OptionB, q.OptionC}
	opts := make([]Option, 0, len(texts))
	for i, text := range texts {
		if text != "" {
			opts = append(opts, Option{Label: OptionLabels[i], Text: text})
		}
	}
	return opts
}

// Stem is the prose part of the prompt, before the first blank line.
func (q Question) Stem() string {
	stem, _, _ := strings.Cut(q.Prompt, "\n\n")
	return stem
}

// Code is the verbatim excerpt after the first blank line, or "" if there is none.
func (q Question) Code() string {
	_, code, _ := strings.Cut(q.Prompt, "\n\n")
	return code
}

// Bank is the ordered question set; the slice order is the canonical question order.
type Bank struct {
	Questions   []Question `json:"questions"`
	Fingerprint string     `json:"fingerprint"`
}

// Question looks up a question by id.
func (b Bank) Question(id int) (Question, bool) {
	for _, q := range b.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Categories returns category tags in order of first appearance.
func (b Bank) Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, q := range b.Questions {
		if _, ok := seen[q.Category]; ok {
			continue
		}
		seen[q.Category] = struct{}{}
		out = append(out, q.Category)
	}
	return out
}

// Learner identifies who took an attempt.
type Learner struct {
	Name  string `json:"name"`
	Class string `json:"class"`
}

// Attempt is a submission in progress. Answers absent from the map are unanswered.
type Attempt struct {
	ID        string         `json:"id"`
	Learner   Learner        `json:"learner"`
	Answers   map[int]string `json:"answers"`
	StartedAt time.Time      `json:"startedAt"`
	Deadline  time.Time      `json:"deadline"`
}

// Expired reports whether the time budget has elapsed at now.
func (a Attempt) Expired(now time.Time) bool {
	return !a.Deadline.IsZero() && !now.Before(a.Deadline)
}

// QuestionOutcome is the graded outcome of a single question.
type QuestionOutcome struct {
	QuestionID int        `json:"questionId"`
	Category   string     `json:"category"`
	Difficulty Difficulty `json:"difficulty"`
	Selected   string     `json:"selected"`
	Correct    string     `json:"correct"`
	IsCorrect  bool       `json:"isCorrect"`
	Points     float64    `json:"points"`
	MaxPoints  float64    `json:"maxPoints"`
}

// DifficultySummary aggregates outcomes of one tier.
type DifficultySummary struct {
	Count     int     `json:"count"`
	Correct   int     `json:"correct"`
	Points    float64 `json:"points"`
	MaxPoints float64 `json:"maxPoints"`
	Rate      float64 `json:"rate"`
}

// Result is a graded attempt; immutable once computed.
type Result struct {
	AttemptID    string                           `json:"attemptId,omitempty"`
	Learner      Learner                          `json:"learner"`
	Score        float64                          `json:"score"`
	Outcomes     []QuestionOutcome                `json:"outcomes"`
	ByDifficulty map[Difficulty]DifficultySummary `json:"byDifficulty"`
	Answers      map[int]string                   `json:"answers"`
	Forced       bool                             `json:"forced,omitempty"`
	GradedAt     time.Time                        `json:"gradedAt"`
}

// MaxScore is the normalized total every bank is scored against.
const MaxScore = 100.0

// Record is one persisted row of the Result Log.
type Record struct {
	Timestamp   time.Time      `json:"timestamp"`
	Name        string         `json:"name"`
	Class       string         `json:"class"`
	Score       float64        `json:"score"`
	Total       float64        `json:"total"`
	CorrectRate float64        `json:"correctRate"`
	Answers     map[int]string `json:"answers"`
}

// Summary describes the class score distribution.
type Summary struct {
	Count    int     `json:"total"`
	Mean     float64 `json:"avg"`
	Median   float64 `json:"median"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	StdDev   float64 `json:"std"`
	PassRate float64 `json:"passRate"`
}

// CategoryRate compares a learner with the class on one knowledge point.
type CategoryRate struct {
	Category      string   `json:"category"`
	LearnerRate   *float64 `json:"learnerRate,omitempty"` // nil in the class-only view
	ClassRate     float64  `json:"classRate"`
	QuestionCount int      `json:"questionCount"`
}

// Snapshot is the derived class view recomputed per request.
type Snapshot struct {
	Summary       Summary        `json:"summary"`
	Percentile    *float64       `json:"percentile,omitempty"`
	SelfVsAverage *float64       `json:"selfVsAverage,omitempty"`
	Categories    []CategoryRate `json:"categories"`
	Strengths     []string       `json:"strengths"`
	Weaknesses    []string       `json:"weaknesses"`
}
