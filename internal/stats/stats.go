// Package stats derives class-wide statistics from the result log.
// Every function returns a well-formed zero or neutral value on empty or singleton input.
package stats

import (
	"math"
	"sort"

	"classquiz/internal/domain"
	"classquiz/internal/scoring"
)

const (
	// PassMark is the minimum score counted as a pass.
	PassMark = 60.0
	// StrengthThreshold is the pooled class rate (percent) at or above which a category is a strength.
	StrengthThreshold = 50.0
	// neutralPercentile is reported when there is nobody to rank against.
	neutralPercentile = 50.0
)

// Scores extracts the score column of the log.
func Scores(records []domain.Record) []float64 {
	scores := make([]float64, len(records))
	for i, r := range records {
		scores[i] = r.Score
	}
	return scores
}

// Summarize computes count, mean, median, min, max, population standard deviation
// and pass rate (percent of scores >= PassMark), each rounded to one decimal.
func Summarize(scores []float64) domain.Summary {
	n := len(scores)
	if n == 0 {
		return domain.Summary{}
	}

	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	sum, passed := 0.0, 0
	for _, s := range sorted {
		sum += s
		if s >= PassMark {
			passed++
		}
	}
	mean := sum / float64(n)

	variance := 0.0
	for _, s := range sorted {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(n)

	var median float64
	if n%2 == 1 {
		median = sorted[n/2]
	} else {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return domain.Summary{
		Count:    n,
		Mean:     scoring.Round(mean, 1),
		Median:   scoring.Round(median, 1),
		Min:      scoring.Round(sorted[0], 1),
		Max:      scoring.Round(sorted[n-1], 1),
		StdDev:   scoring.Round(math.Sqrt(variance), 1),
		PassRate: scoring.Round(float64(passed)/float64(n)*100, 1),
	}
}

// PercentileRank places score within scores, which is expected to include the
// learner's own entry. Ties count half, excluding the learner's own record.
func PercentileRank(score float64, scores []float64) float64 {
	n := len(scores)
	if n <= 1 {
		return neutralPercentile
	}
	below, equal := 0, 0
	for _, s := range scores {
		switch {
		case s < score:
			below++
		case s == score:
			equal++
		}
	}
	if equal > 0 {
		equal--
	}
	rank := (float64(below) + 0.5*float64(equal)) / float64(n-1) * 100
	return scoring.Round(rank, 1)
}

// CategoryRates compares learner answers (nil when there is no learner) with
// the pooled class rate for every category of the bank. The class rate is total
// correct answers over total answers across all records, not an average of rates.
func CategoryRates(bank domain.Bank, records []domain.Record, learner map[int]string) []domain.CategoryRate {
	if len(records) == 0 {
		return []domain.CategoryRate{}
	}

	byCategory := make(map[string][]domain.Question)
	for _, q := range bank.Questions {
		byCategory[q.Category] = append(byCategory[q.Category], q)
	}

	rates := make([]domain.CategoryRate, 0, len(byCategory))
	for _, category := range bank.Categories() {
		questions := byCategory[category]

		var learnerRate *float64
		if learner != nil {
			rate := percent(countCorrect(questions, learner), len(questions))
			learnerRate = &rate
		}

		classCorrect := 0
		for _, r := range records {
			classCorrect += countCorrect(questions, r.Answers)
		}
		classTotal := len(questions) * len(records)

		rates = append(rates, domain.CategoryRate{
			Category:      category,
			LearnerRate:   learnerRate,
			ClassRate:     percent(classCorrect, classTotal),
			QuestionCount: len(questions),
		})
	}
	return rates
}

// Classify splits categories into class strengths and weaknesses.
func Classify(rates []domain.CategoryRate) (strengths, weaknesses []string) {
	strengths, weaknesses = []string{}, []string{}
	for _, r := range rates {
		if r.ClassRate >= StrengthThreshold {
			strengths = append(strengths, r.Category)
		} else {
			weaknesses = append(weaknesses, r.Category)
		}
	}
	return strengths, weaknesses
}

// Build assembles a snapshot of the class. learner may be nil for a class-only view;
// when set it is expected to already be part of records.
func Build(bank domain.Bank, records []domain.Record, learner *domain.Result) domain.Snapshot {
	scores := Scores(records)
	snapshot := domain.Snapshot{Summary: Summarize(scores)}

	var answers map[int]string
	if learner != nil {
		answers = learner.Answers
		if answers == nil {
			answers = map[int]string{}
		}
		percentile, diff := Standing(learner.Score, scores)
		snapshot.Percentile = &percentile
		snapshot.SelfVsAverage = &diff
	}

	snapshot.Categories = CategoryRates(bank, records, answers)
	snapshot.Strengths, snapshot.Weaknesses = Classify(snapshot.Categories)
	return snapshot
}

// Standing is the percentile rank of score and its distance from the mean of
// scores, both over the same population (which should include score) and
// rounded to one decimal.
func Standing(score float64, scores []float64) (percentile, selfVsAverage float64) {
	percentile = PercentileRank(score, scores)
	if len(scores) > 0 {
		selfVsAverage = scoring.Round(score-mean(scores), 1)
	}
	return percentile, selfVsAverage
}

func countCorrect(questions []domain.Question, answers map[int]string) int {
	n := 0
	for _, q := range questions {
		if scoring.IsCorrect(answers[q.ID], q.Answer) {
			n++
		}
	}
	return n
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
