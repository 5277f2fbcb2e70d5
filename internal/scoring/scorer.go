// Package scoring grades answer maps against a question bank.
//
// Every bank is scored out of 100 points. A question is worth its tier weight
// (easy=1, medium=2, hard=3) divided by the bank's total weight, times 100.
package scoring

import (
	"math"

	"classquiz/internal/domain"
)

// PointValues returns each question's share of the 100 points, keyed by id.
func PointValues(bank domain.Bank) map[int]float64 {
	total := 0
	for _, q := range bank.Questions {
		total += q.Difficulty.Weight()
	}
	values := make(map[int]float64, len(bank.Questions))
	if total == 0 {
		return values
	}
	for _, q := range bank.Questions {
		values[q.ID] = float64(q.Difficulty.Weight()) / float64(total) * domain.MaxScore
	}
	return values
}

// IsCorrect compares a selection with the answer key, ignoring case and surrounding space.
// A blank selection is never correct.
func IsCorrect(selected, answer string) bool {
	sel := domain.NormalizeLabel(selected)
	return sel != "" && sel == domain.NormalizeLabel(answer)
}

// Grade scores answers against bank. Questions missing from answers count as wrong.
// The returned Result carries no learner, attempt id or timestamp; callers fill those in.
func Grade(bank domain.Bank, answers map[int]string) domain.Result {
	values := PointValues(bank)

	byDifficulty := make(map[domain.Difficulty]domain.DifficultySummary, len(domain.Difficulties))
	for _, d := range domain.Difficulties {
		byDifficulty[d] = domain.DifficultySummary{}
	}

	outcomes := make([]domain.QuestionOutcome, 0, len(bank.Questions))
	earned := 0.0
	for _, q := range bank.Questions {
		selected := answers[q.ID]
		correct := IsCorrect(selected, q.Answer)
		maxPoints := values[q.ID]
		points := 0.0
		if correct {
			points = maxPoints
		}
		earned += points

		outcomes = append(outcomes, domain.QuestionOutcome{
			QuestionID: q.ID,
			Category:   q.Category,
			Difficulty: q.Difficulty,
			Selected:   selected,
			Correct:    q.Answer,
			IsCorrect:  correct,
			Points:     points,
			MaxPoints:  maxPoints,
		})

		summary := byDifficulty[q.Difficulty]
		summary.Count++
		if correct {
			summary.Correct++
		}
		summary.Points += points
		summary.MaxPoints += maxPoints
		byDifficulty[q.Difficulty] = summary
	}

	for d, summary := range byDifficulty {
		if summary.Count > 0 {
			summary.Rate = float64(summary.Correct) / float64(summary.Count) * 100
		}
		byDifficulty[d] = summary
	}

	return domain.Result{
		Score:        clamp(Round(earned, 1), 0, domain.MaxScore),
		Outcomes:     outcomes,
		ByDifficulty: byDifficulty,
		Answers:      copyAnswers(answers),
	}
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// CorrectRate is score as a percentage of total, rounded to two decimals.
func CorrectRate(score, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return Round(score/total*100, 2)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func copyAnswers(answers map[int]string) map[int]string {
	out := make(map[int]string, len(answers))
	for id, label := range answers {
		out[id] = label
	}
	return out
}
