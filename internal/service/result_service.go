package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/grading"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
)

// ResultService reconciles freshly graded automatic results with the stored
// results of a participation.
type ResultService interface {
	// ProcessNewAutomaticResult persists newResult, or merges it into a pending
	// manual assessment. Callers must hold the participation lock.
	ProcessNewAutomaticResult(ctx context.Context, participation models.Participation, exercise models.ProgrammingExercise, newResult *models.Result) (models.Result, error)
	Latest(ctx context.Context, participationID uint) (models.Result, error)
}

type resultService struct {
	results  repository.ResultRepository
	policies SubmissionPolicyService
	logger   zerolog.Logger
}

// NewResultService constructs the reconciler. policies may be nil.
func NewResultService(results repository.ResultRepository, policies SubmissionPolicyService, logger zerolog.Logger) ResultService {
	return &resultService{
		results:  results,
		policies: policies,
		logger:   logger.With().Str("component", "result_service").Logger(),
	}
}

func (s *resultService) ProcessNewAutomaticResult(ctx context.Context, participation models.Participation, exercise models.ProgrammingExercise, newResult *models.Result) (models.Result, error) {
	latest, err := s.results.Latest(ctx, participation.ID)
	hasLatest := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Result{}, fmt.Errorf("load latest result: %w", err)
	}

	var saved models.Result
	if hasLatest && latest.IsManual() && !participation.PracticeMode {
		saved, err = s.mergeIntoManualResult(ctx, latest.ID, exercise, newResult)
		if err != nil {
			return models.Result{}, err
		}
	} else {
		newResult.ParticipationID = participation.ID
		if err := s.results.Create(ctx, newResult); err != nil {
			return models.Result{}, fmt.Errorf("save result: %w", err)
		}
		saved = *newResult
	}

	if s.policies != nil && !participation.PracticeMode {
		if _, err := s.policies.Enforce(ctx, participation, exercise.SubmissionPolicy); err != nil {
			return saved, err
		}
	}
	return saved, nil
}

// mergeIntoManualResult replaces the automatic feedback of a manual assessment
// with copies of the new automatic feedback and recomputes its score.
func (s *resultService) mergeIntoManualResult(ctx context.Context, resultID uint, exercise models.ProgrammingExercise, newResult *models.Result) (models.Result, error) {
	// reload to avoid working on a stale copy of the instructor's edits
	existing, err := s.results.GetWithFeedback(ctx, resultID)
	if err != nil {
		return models.Result{}, fmt.Errorf("load manual result: %w", err)
	}

	if !existing.IsDraft() {
		existing.CompletionDate = newResult.CompletionDate
	}

	existing.RemoveFeedbackIf(func(feedback models.Feedback) bool {
		return feedback.IsAutomatic()
	})
	for _, feedback := range newResult.Feedbacks {
		existing.AddFeedback(feedback.Copy())
	}

	existing.TestCaseCount = newResult.TestCaseCount
	existing.PassedTestCaseCount = newResult.PassedTestCaseCount
	existing.CodeIssueCount = newResult.CodeIssueCount
	grading.ApplyPointTotal(&existing, exercise)

	if err := s.results.Update(ctx, &existing); err != nil {
		return models.Result{}, fmt.Errorf("save manual result: %w", err)
	}

	s.logger.Info().
		Uint("result_id", existing.ID).
		Uint("participation_id", existing.ParticipationID).
		Float64("score", existing.Score).
		Msg("merged automatic feedback into manual assessment")
	return existing, nil
}

func (s *resultService) Latest(ctx context.Context, participationID uint) (models.Result, error) {
	latest, err := s.results.Latest(ctx, participationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Result{}, ErrResultNotFound
		}
		return models.Result{}, err
	}
	return s.results.GetWithFeedback(ctx, latest.ID)
}
