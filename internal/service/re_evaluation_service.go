package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/grading"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/repository"
)

// ReEvaluationService re-scores stored results after the registry of an exercise changed.
type ReEvaluationService interface {
	ReEvaluate(ctx context.Context, exerciseID uint) (dto.ReEvaluationSummary, error)
}

type reEvaluationService struct {
	exercises      repository.ExerciseRepository
	participations repository.ParticipationRepository
	results        repository.ResultRepository
	testCases      TestCaseService
	calculator     *grading.Calculator
	locker         KeyedLocker
	concurrency    int
	logger         zerolog.Logger
	now            func() time.Time
}

// NewReEvaluationService constructs the service; concurrency bounds the participations scored in parallel.
func NewReEvaluationService(
	exercises repository.ExerciseRepository,
	participations repository.ParticipationRepository,
	results repository.ResultRepository,
	testCases TestCaseService,
	calculator *grading.Calculator,
	locker KeyedLocker,
	concurrency int,
	logger zerolog.Logger,
) ReEvaluationService {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &reEvaluationService{
		exercises:      exercises,
		participations: participations,
		results:        results,
		testCases:      testCases,
		calculator:     calculator,
		locker:         locker,
		concurrency:    concurrency,
		logger:         logger.With().Str("component", "re_evaluation_service").Logger(),
		now:            time.Now,
	}
}

func (s *reEvaluationService) ReEvaluate(ctx context.Context, exerciseID uint) (dto.ReEvaluationSummary, error) {
	summary := dto.ReEvaluationSummary{ExerciseID: exerciseID}

	exercise, err := s.exercises.GetByID(ctx, exerciseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return summary, ErrExerciseNotFound
		}
		return summary, err
	}

	participations, err := s.participations.ListByExercise(ctx, exerciseID)
	if err != nil {
		return summary, fmt.Errorf("list participations: %w", err)
	}
	summary.Participations = len(participations)

	active, err := s.testCases.Active(ctx, exerciseID)
	if err != nil {
		return summary, fmt.Errorf("load active test cases: %w", err)
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)

	for _, participation := range participations {
		group.Go(func() error {
			updated, err := s.reEvaluateParticipation(groupCtx, exercise, participation, active)
			if err != nil {
				observability.ReEvaluatedResults().WithLabelValues("error").Inc()
				return fmt.Errorf("participation %d: %w", participation.ID, err)
			}

			mu.Lock()
			defer mu.Unlock()
			if updated {
				summary.Updated++
				observability.ReEvaluatedResults().WithLabelValues("updated").Inc()
			} else {
				summary.Skipped++
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return summary, err
	}

	s.logger.Info().
		Uint("exercise_id", exerciseID).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Msg("exercise re-evaluated")
	return summary, nil
}

func (s *reEvaluationService) reEvaluateParticipation(ctx context.Context, exercise models.ProgrammingExercise, participation models.Participation, active []models.TestCase) (bool, error) {
	unlock, err := s.locker.Lock(ctx, ParticipationLockKey(participation.ID))
	if err != nil {
		return false, err
	}
	defer unlock()

	latest, err := s.results.Latest(ctx, participation.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	result, err := s.results.GetWithFeedback(ctx, latest.ID)
	if err != nil {
		return false, err
	}

	relevant := grading.RelevantTestCases(active, participation, exercise, s.now())
	if _, err := s.calculator.CalculateScoreForResult(ctx, grading.ScoreInput{
		AllTestCases:          active,
		RelevantTestCases:     relevant,
		Result:                &result,
		Exercise:              exercise,
		Participation:         participation,
		ApplySubmissionPolicy: !participation.IsTemplateOrSolution(),
	}); err != nil {
		return false, err
	}

	if err := s.results.Update(ctx, &result); err != nil {
		return false, fmt.Errorf("save result: %w", err)
	}
	return true, nil
}
