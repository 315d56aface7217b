package grading

import (
	"context"
	"sort"
	"strings"

	"github.com/noah-isme/gema-grader/internal/models"
)

// CategoryProvider looks up the static code analysis categories of an exercise.
type CategoryProvider interface {
	Categories(ctx context.Context, exerciseID uint) ([]models.StaticCodeAnalysisCategory, error)
}

func categoryKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func sortedCategories(categories []models.StaticCodeAnalysisCategory) []models.StaticCodeAnalysisCategory {
	out := make([]models.StaticCodeAnalysisCategory, len(categories))
	copy(out, categories)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// removeHiddenStaticCodeAnalysis drops SCA feedback of inactive or unknown categories.
func removeHiddenStaticCodeAnalysis(result *models.Result, categories []models.StaticCodeAnalysisCategory) {
	visible := make(map[string]struct{}, len(categories))
	for _, category := range categories {
		if category.State == models.CategoryStateInactive {
			continue
		}
		visible[categoryKey(category.Name)] = struct{}{}
	}

	result.RemoveFeedbackIf(func(feedback models.Feedback) bool {
		if !feedback.IsAutomatic() || !feedback.IsStaticCodeAnalysis() {
			return false
		}
		_, ok := visible[categoryKey(feedback.StaticCodeAnalysisCategory())]
		return !ok
	})
}

func staticCodeAnalysisIndexes(result *models.Result) []int {
	var indexes []int
	for i, feedback := range result.Feedbacks {
		if feedback.IsAutomatic() && feedback.IsStaticCodeAnalysis() {
			indexes = append(indexes, i)
		}
	}
	return indexes
}

// applyStaticCodeAnalysisPenalty computes the penalty over graded categories and
// spreads each category's penalty evenly over its feedback credits.
func applyStaticCodeAnalysisPenalty(result *models.Result, indexes []int, categories []models.StaticCodeAnalysisCategory, exercise models.ProgrammingExercise) float64 {
	maxExercisePenalty := exercise.MaxStaticCodeAnalysisPenaltyPercent() / 100 * exercise.MaxPoints

	byCategory := make(map[string][]int)
	for _, idx := range indexes {
		key := categoryKey(result.Feedbacks[idx].StaticCodeAnalysisCategory())
		byCategory[key] = append(byCategory[key], idx)
		result.Feedbacks[idx].SetCredits(0)
	}

	overall := 0.0
	for _, category := range sortedCategories(categories) {
		if category.State != models.CategoryStateGraded {
			continue
		}
		items := byCategory[categoryKey(category.Name)]
		if len(items) == 0 {
			continue
		}

		categoryPenalty := float64(len(items)) * category.Penalty
		if category.MaxPenalty != nil && categoryPenalty > *category.MaxPenalty {
			categoryPenalty = *category.MaxPenalty
		}
		if overall+categoryPenalty > maxExercisePenalty {
			categoryPenalty = maxExercisePenalty - overall
		}
		overall += categoryPenalty

		perItem := categoryPenalty / float64(len(items))
		if perItem == 0 {
			continue
		}
		for _, idx := range items {
			result.Feedbacks[idx].SetCredits(-perItem)
		}
	}
	return overall
}
