package grading

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/models"
)

// NotExecutedDetailText explains synthetic feedback for tests that did not run.
const NotExecutedDetailText = "Test was not executed."

// SubmissionPolicyEvaluator computes the point deduction of a penalty policy.
type SubmissionPolicyEvaluator interface {
	Penalty(ctx context.Context, participation models.Participation, policy models.SubmissionPolicy) (float64, error)
	PenaltyFeedback(policy models.SubmissionPolicy, penalty float64) models.Feedback
}

// ScoreInput is everything a single scoring call needs.
type ScoreInput struct {
	// AllTestCases are the active test cases of the exercise.
	AllTestCases []models.TestCase
	// RelevantTestCases are the test cases that count at evaluation time.
	RelevantTestCases     []models.TestCase
	Result                *models.Result
	Exercise              models.ProgrammingExercise
	Participation         models.Participation
	ApplySubmissionPolicy bool
}

// ScoreCalculationData is the derived context of one score calculation.
type ScoreCalculationData struct {
	Exercise            models.ProgrammingExercise
	Participation       models.Participation
	Result              *models.Result
	TestCases           []models.TestCase
	SuccessfulTestCases []models.TestCase
	StaticCodeAnalysis  []int
	WeightSum           float64
	visibleCount        int
}

// NewScoreCalculationData precomputes the weight sum over all non-invisible test cases.
func NewScoreCalculationData(exercise models.ProgrammingExercise, participation models.Participation, result *models.Result, testCases, successful []models.TestCase, scaIndexes []int) ScoreCalculationData {
	data := ScoreCalculationData{
		Exercise:            exercise,
		Participation:       participation,
		Result:              result,
		TestCases:           testCases,
		SuccessfulTestCases: successful,
		StaticCodeAnalysis:  scaIndexes,
	}
	for _, testCase := range testCases {
		if testCase.IsInvisible() {
			continue
		}
		data.WeightSum += testCase.Weight
		data.visibleCount++
	}
	return data
}

func (d ScoreCalculationData) isSolution() bool {
	return d.Participation.IsSolution() || d.Exercise.IsSolutionParticipation(d.Participation.ID)
}

// TestCasePoints is the credit a passing test case earns.
func (d ScoreCalculationData) TestCasePoints(testCase models.TestCase) float64 {
	if d.WeightSum > weightTolerance {
		weighted := testCase.Weight * testCase.BonusMultiplier / d.WeightSum * d.Exercise.MaxPoints
		return normalizeNaN(weighted + testCase.BonusPoints)
	}
	if d.isSolution() && d.visibleCount > 0 {
		return 1.0 / float64(d.visibleCount) * d.Exercise.MaxPoints
	}
	return 0
}

// Calculator computes scores for automatic results.
type Calculator struct {
	categories CategoryProvider
	policies   SubmissionPolicyEvaluator
	duplicates *DuplicateDetector
	logger     zerolog.Logger
}

// NewCalculator constructs a calculator. Any collaborator may be nil: without a
// category provider static code analysis is left ungraded, without a policy
// evaluator no submission penalty applies.
func NewCalculator(categories CategoryProvider, policies SubmissionPolicyEvaluator, notifier DuplicateNotifier, logger zerolog.Logger) *Calculator {
	return &Calculator{
		categories: categories,
		policies:   policies,
		duplicates: NewDuplicateDetector(notifier),
		logger:     logger.With().Str("component", "score_calculator").Logger(),
	}
}

// CalculateScoreForResult updates score, counters and feedback of in.Result.
//
// Results without test feedback are returned untouched: that is a failed build,
// and a zero score would look like every test failed.
func (c *Calculator) CalculateScoreForResult(ctx context.Context, in ScoreInput) (*models.Result, error) {
	result := in.Result
	exercise := in.Exercise

	categories, err := c.loadCategories(ctx, exercise)
	if err != nil {
		return result, err
	}
	if categories != nil {
		removeHiddenStaticCodeAnalysis(result, categories)
	}

	hasTestCaseFeedback := false
	for _, feedback := range result.Feedbacks {
		if feedback.IsTestFeedback() {
			hasTestCaseFeedback = true
			break
		}
	}
	hasFeedback := len(result.Feedbacks) > 0

	switch {
	case len(in.RelevantTestCases) > 0 && hasTestCaseFeedback && hasFeedback:
		return result, c.scoreExecutedTests(ctx, in, categories)
	case len(in.AllTestCases) > 0 && hasTestCaseFeedback && hasFeedback:
		return result, c.scoreNoRelevantTests(ctx, in)
	default:
		return result, nil
	}
}

func (c *Calculator) loadCategories(ctx context.Context, exercise models.ProgrammingExercise) ([]models.StaticCodeAnalysisCategory, error) {
	if c.categories == nil {
		return nil, nil
	}
	categories, err := c.categories.Categories(ctx, exercise.ID)
	if err != nil {
		return nil, fmt.Errorf("load static code analysis categories: %w", err)
	}
	if categories == nil {
		categories = []models.StaticCodeAnalysisCategory{}
	}
	return categories, nil
}

func (c *Calculator) scoreExecutedTests(ctx context.Context, in ScoreInput, categories []models.StaticCodeAnalysisCategory) error {
	result := in.Result
	exercise := in.Exercise

	byName := indexTestCases(in.AllTestCases)

	// Stale feedback of removed tests must not count.
	result.RemoveFeedbackIf(func(feedback models.Feedback) bool {
		if !feedback.IsAutomatic() || feedback.IsStaticCodeAnalysis() {
			return false
		}
		_, known := byName[models.TestNameKey(feedback.Text)]
		return !known
	})

	feedbackNames := make(map[string]struct{}, len(result.Feedbacks))
	for i := range result.Feedbacks {
		feedback := &result.Feedbacks[i]
		if !feedback.IsTestFeedback() {
			continue
		}
		key := models.TestNameKey(feedback.Text)
		feedbackNames[key] = struct{}{}
		if testCase, ok := byName[key]; ok {
			feedback.Visibility = string(testCase.Visibility)
		}
	}

	for _, testCase := range in.RelevantTestCases {
		if _, ok := feedbackNames[models.TestNameKey(testCase.TestName)]; ok {
			continue
		}
		notExecuted := models.Feedback{
			Text:       testCase.TestName,
			DetailText: NotExecutedDetailText,
			Type:       models.FeedbackTypeAutomatic,
			Visibility: string(testCase.Visibility),
		}
		notExecuted.SetPositive(false)
		result.AddFeedback(notExecuted)
	}

	hasDuplicates, err := c.duplicates.DetectInResult(ctx, exercise, result)
	if err != nil {
		return err
	}

	policyPenalty, err := c.submissionPolicyPenalty(ctx, in)
	if err != nil {
		return err
	}

	successful := successfulTestCases(in.RelevantTestCases, result.Feedbacks)
	scaIndexes := staticCodeAnalysisIndexes(result)
	data := NewScoreCalculationData(exercise, in.Participation, result, in.AllTestCases, successful, scaIndexes)

	if hasDuplicates {
		setTestFeedbackCredits(result, byName, nil, data)
		result.Score = 0
	} else {
		result.Score = c.calculateScore(data, categories, policyPenalty)
	}

	result.TestCaseCount = len(in.RelevantTestCases)
	result.PassedTestCaseCount = len(successful)
	result.CodeIssueCount = len(scaIndexes)

	if result.IsManual() {
		ApplyPointTotal(result, exercise)
	}
	return nil
}

// scoreNoRelevantTests handles builds whose tests all count only after the due
// date: the score is zero, but duplicate names are still reported.
func (c *Calculator) scoreNoRelevantTests(ctx context.Context, in ScoreInput) error {
	result := in.Result

	markers, err := c.duplicates.Detect(ctx, in.Exercise, result.Feedbacks)

	result.RemoveFeedbackIf(func(feedback models.Feedback) bool {
		return feedback.IsAutomatic() && !feedback.IsStaticCodeAnalysis()
	})
	result.AddFeedback(markers...)

	result.Score = 0
	result.TestCaseCount = 0
	result.PassedTestCaseCount = 0
	result.CodeIssueCount = 0
	return err
}

func (c *Calculator) submissionPolicyPenalty(ctx context.Context, in ScoreInput) (float64, error) {
	policy := in.Exercise.SubmissionPolicy
	if !in.ApplySubmissionPolicy || c.policies == nil || !policy.IsPenaltyPolicy() {
		return 0, nil
	}

	penalty, err := c.policies.Penalty(ctx, in.Participation, *policy)
	if err != nil {
		return 0, fmt.Errorf("evaluate submission policy: %w", err)
	}
	penalty = normalizeNaN(penalty)
	if penalty <= 0 {
		return 0, nil
	}
	in.Result.AddFeedback(c.policies.PenaltyFeedback(*policy, penalty))
	return penalty, nil
}

func (c *Calculator) calculateScore(data ScoreCalculationData, categories []models.StaticCodeAnalysisCategory, policyPenalty float64) float64 {
	exercise := data.Exercise
	result := data.Result

	if data.WeightSum <= weightTolerance && !data.isSolution() {
		c.logger.Warn().
			Uint("exercise_id", exercise.ID).
			Uint("participation_id", data.Participation.ID).
			Msg("test case weights sum up to zero, every test earns zero points")
	}

	successfulPoints := setTestFeedbackCredits(result, indexTestCases(data.TestCases), data.SuccessfulTestCases, data)
	successfulPoints = math.Min(successfulPoints, exercise.ReachablePoints())

	totalPenalty := 0.0
	if exercise.StaticCodeAnalysisEnabled && categories != nil {
		totalPenalty += applyStaticCodeAnalysisPenalty(result, data.StaticCodeAnalysis, categories, exercise)
	}
	totalPenalty += policyPenalty

	points := math.Max(normalizeNaN(successfulPoints-totalPenalty), 0)
	return ScoreFromPoints(points, exercise)
}

// setTestFeedbackCredits credits feedback of successful test cases and zeroes the
// rest. It returns the summed credit of the successful test cases.
func setTestFeedbackCredits(result *models.Result, byName map[string]models.TestCase, successful []models.TestCase, data ScoreCalculationData) float64 {
	credited := make(map[string]float64, len(successful))
	total := 0.0
	for _, testCase := range successful {
		points := data.TestCasePoints(testCase)
		credited[models.TestNameKey(testCase.TestName)] = points
		total += points
	}

	for i := range result.Feedbacks {
		feedback := &result.Feedbacks[i]
		if !feedback.IsTestFeedback() {
			continue
		}
		key := models.TestNameKey(feedback.Text)
		if _, ok := byName[key]; !ok {
			continue
		}
		if points, ok := credited[key]; ok {
			feedback.SetCredits(points)
			// only the first feedback of a test case earns its credit
			delete(credited, key)
			continue
		}
		feedback.SetCredits(0)
	}
	return total
}

func indexTestCases(testCases []models.TestCase) map[string]models.TestCase {
	index := make(map[string]models.TestCase, len(testCases))
	for _, testCase := range testCases {
		index[models.TestNameKey(testCase.TestName)] = testCase
	}
	return index
}

func successfulTestCases(testCases []models.TestCase, feedbacks []models.Feedback) []models.TestCase {
	passed := make(map[string]bool, len(feedbacks))
	for _, feedback := range feedbacks {
		if !feedback.IsTestFeedback() {
			continue
		}
		key := models.TestNameKey(feedback.Text)
		if _, seen := passed[key]; !seen {
			passed[key] = feedback.IsPositive()
		}
	}

	successful := make([]models.TestCase, 0, len(testCases))
	for _, testCase := range testCases {
		if passed[models.TestNameKey(testCase.TestName)] {
			successful = append(successful, testCase)
		}
	}
	return successful
}
