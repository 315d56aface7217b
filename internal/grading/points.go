package grading

import (
	"math"

	"github.com/noah-isme/gema-grader/internal/models"
)

// weightTolerance is the threshold below which a weight sum counts as zero.
const weightTolerance = 1e-8

func normalizeNaN(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return value
}

// maxScore is the highest score an exercise allows, above 100 only with bonus points.
func maxScore(exercise models.ProgrammingExercise) float64 {
	if exercise.MaxPoints <= 0 {
		return 100
	}
	return math.Max(100, exercise.ReachablePoints()/exercise.MaxPoints*100)
}

// ScoreFromPoints converts points into a percentage of the exercise's max points.
func ScoreFromPoints(points float64, exercise models.ProgrammingExercise) float64 {
	if exercise.MaxPoints <= 0 {
		return 0
	}
	score := normalizeNaN(points / exercise.MaxPoints * 100)
	return math.Min(math.Max(score, 0), maxScore(exercise))
}

// TotalPoints sums the credits of every feedback item, capped to the reachable points.
func TotalPoints(feedbacks []models.Feedback, exercise models.ProgrammingExercise) float64 {
	total := 0.0
	for _, feedback := range feedbacks {
		total += feedback.CreditsOrZero()
	}
	total = normalizeNaN(total)
	return math.Min(math.Max(total, 0), exercise.ReachablePoints())
}

// ApplyPointTotal recomputes the result score from its feedback credits. Manual
// and semi-automatic results are scored this way.
func ApplyPointTotal(result *models.Result, exercise models.ProgrammingExercise) {
	result.Score = ScoreFromPoints(TotalPoints(result.Feedbacks, exercise), exercise)
}
