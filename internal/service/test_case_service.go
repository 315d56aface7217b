package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/grading"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/repository"
)

const (
	registryTriggerBuild  = "build"
	registryTriggerUpdate = "update"
	registryTriggerReset  = "reset"
)

// TestCaseService maintains the test case registry of exercises.
type TestCaseService interface {
	// Extract derives registry changes from the feedback of a build and reports
	// whether anything was written.
	Extract(ctx context.Context, exercise models.ProgrammingExercise, feedbacks []models.Feedback) (bool, error)
	List(ctx context.Context, exerciseID uint) ([]models.TestCase, error)
	Active(ctx context.Context, exerciseID uint) ([]models.TestCase, error)
	Update(ctx context.Context, exerciseID uint, payload dto.TestCaseUpdateBatch) (dto.TestCaseChangeResponse, error)
	Reset(ctx context.Context, exerciseID uint) (dto.TestCaseChangeResponse, error)
}

type testCaseService struct {
	repo      repository.TestCaseRepository
	exercises repository.ExerciseRepository
	locker    KeyedLocker
	cache     *redis.Client
	cacheTTL  time.Duration
	events    TestCaseEventBroker
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewTestCaseService builds the registry service. cache and events may be nil.
func NewTestCaseService(repo repository.TestCaseRepository, exercises repository.ExerciseRepository, locker KeyedLocker, cache *redis.Client, ttl time.Duration, events TestCaseEventBroker, validate *validator.Validate, logger zerolog.Logger) TestCaseService {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &testCaseService{
		repo:      repo,
		exercises: exercises,
		locker:    locker,
		cache:     cache,
		cacheTTL:  ttl,
		events:    events,
		validator: validate,
		logger:    logger.With().Str("component", "test_case_service").Logger(),
	}
}

func activeTestCasesCacheKey(exerciseID uint) string {
	return fmt.Sprintf("test_cases:exercise:%d:active", exerciseID)
}

func (s *testCaseService) Extract(ctx context.Context, exercise models.ProgrammingExercise, feedbacks []models.Feedback) (bool, error) {
	// a build without test feedback (compile failure, crashed runner) says nothing about the registry
	if !hasTestFeedback(feedbacks) {
		s.logger.Warn().Uint("exercise_id", exercise.ID).Msg("build reported no tests, registry left unchanged")
		return false, nil
	}

	unlock, err := s.locker.Lock(ctx, ExerciseTestCaseLockKey(exercise.ID))
	if err != nil {
		return false, err
	}
	defer unlock()

	existing, err := s.repo.ListByExercise(ctx, exercise.ID)
	if err != nil {
		return false, fmt.Errorf("load test cases: %w", err)
	}

	writes := registryDelta(exercise.ID, existing, feedbacks)
	writes = dropCollidingNames(writes)
	if len(writes) == 0 {
		return false, nil
	}
	grading.ClassifyTestCases(exercise.ProgrammingLanguage, writes)

	if _, err := s.repo.Upsert(ctx, writes); err != nil {
		return false, fmt.Errorf("save test cases: %w", err)
	}

	s.logger.Info().
		Uint("exercise_id", exercise.ID).
		Int("written", len(writes)).
		Msg("test case registry changed")
	s.changed(ctx, exercise.ID, registryTriggerBuild)
	return true, nil
}

func hasTestFeedback(feedbacks []models.Feedback) bool {
	for _, feedback := range feedbacks {
		if feedback.IsTestFeedback() && models.TestNameKey(feedback.Text) != "" {
			return true
		}
	}
	return false
}

// registryDelta returns new test cases and activation flips implied by a build.
func registryDelta(exerciseID uint, existing []models.TestCase, feedbacks []models.Feedback) []models.TestCase {
	existingByKey := make(map[string]models.TestCase, len(existing))
	for _, testCase := range existing {
		existingByKey[testCase.NameKey] = testCase
	}

	writes := make([]models.TestCase, 0)
	reported := make(map[string]struct{}, len(feedbacks))
	for _, feedback := range feedbacks {
		if !feedback.IsTestFeedback() {
			continue
		}
		key := models.TestNameKey(feedback.Text)
		if key == "" {
			continue
		}
		reported[key] = struct{}{}

		current, known := existingByKey[key]
		switch {
		case !known:
			writes = append(writes, models.NewTestCase(exerciseID, feedback.Text))
		case !current.Active:
			current.Active = true
			writes = append(writes, current)
		}
	}

	for _, testCase := range existing {
		if !testCase.Active {
			continue
		}
		if _, ok := reported[testCase.NameKey]; !ok {
			testCase.Active = false
			writes = append(writes, testCase)
		}
	}
	return writes
}

// dropCollidingNames removes every entry whose name collides case-insensitively
// with another entry of the write set.
func dropCollidingNames(writes []models.TestCase) []models.TestCase {
	counts := make(map[string]int, len(writes))
	for _, testCase := range writes {
		counts[models.TestNameKey(testCase.TestName)]++
	}

	kept := writes[:0]
	for _, testCase := range writes {
		if counts[models.TestNameKey(testCase.TestName)] > 1 {
			continue
		}
		kept = append(kept, testCase)
	}
	return kept
}

func (s *testCaseService) List(ctx context.Context, exerciseID uint) ([]models.TestCase, error) {
	return s.repo.ListByExercise(ctx, exerciseID)
}

func (s *testCaseService) Active(ctx context.Context, exerciseID uint) ([]models.TestCase, error) {
	cacheKey := activeTestCasesCacheKey(exerciseID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var testCases []models.TestCase
			if unmarshalErr := json.Unmarshal([]byte(cached), &testCases); unmarshalErr == nil {
				s.logger.Debug().Uint("exercise_id", exerciseID).Msg("test case cache hit")
				return testCases, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read test case cache")
		}
	}

	testCases, err := s.repo.ListActive(ctx, exerciseID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		payload, err := json.Marshal(testCases)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store test case cache")
			}
		}
	}

	return testCases, nil
}

func (s *testCaseService) Update(ctx context.Context, exerciseID uint, payload dto.TestCaseUpdateBatch) (dto.TestCaseChangeResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TestCaseChangeResponse{}, err
	}

	return s.rewrite(ctx, exerciseID, registryTriggerUpdate, func(current map[uint]*models.TestCase) (map[uint]struct{}, error) {
		changed := make(map[uint]struct{})
		for _, update := range payload.TestCases {
			testCase, ok := current[update.ID]
			if !ok {
				return nil, fmt.Errorf("%w: test case %d does not belong to exercise %d", ErrInvalidTestCaseUpdate, update.ID, exerciseID)
			}
			if applyTestCaseUpdate(testCase, update) {
				changed[testCase.ID] = struct{}{}
			}
		}
		return changed, nil
	})
}

func (s *testCaseService) Reset(ctx context.Context, exerciseID uint) (dto.TestCaseChangeResponse, error) {
	return s.rewrite(ctx, exerciseID, registryTriggerReset, func(current map[uint]*models.TestCase) (map[uint]struct{}, error) {
		changed := make(map[uint]struct{})
		for id, testCase := range current {
			if testCase.Weight == models.DefaultTestCaseWeight &&
				testCase.BonusMultiplier == models.DefaultTestCaseBonusMultiplier &&
				testCase.BonusPoints == models.DefaultTestCaseBonusPoints &&
				testCase.Visibility == models.VisibilityAlways {
				continue
			}
			testCase.Weight = models.DefaultTestCaseWeight
			testCase.BonusMultiplier = models.DefaultTestCaseBonusMultiplier
			testCase.BonusPoints = models.DefaultTestCaseBonusPoints
			testCase.Visibility = models.VisibilityAlways
			changed[id] = struct{}{}
		}
		return changed, nil
	})
}

type testCaseMutation func(current map[uint]*models.TestCase) (map[uint]struct{}, error)

func (s *testCaseService) rewrite(ctx context.Context, exerciseID uint, trigger string, mutate testCaseMutation) (dto.TestCaseChangeResponse, error) {
	if _, err := s.exercises.GetByID(ctx, exerciseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TestCaseChangeResponse{}, ErrExerciseNotFound
		}
		return dto.TestCaseChangeResponse{}, err
	}

	unlock, err := s.locker.Lock(ctx, ExerciseTestCaseLockKey(exerciseID))
	if err != nil {
		return dto.TestCaseChangeResponse{}, err
	}
	defer unlock()

	testCases, err := s.repo.ListByExercise(ctx, exerciseID)
	if err != nil {
		return dto.TestCaseChangeResponse{}, err
	}

	current := make(map[uint]*models.TestCase, len(testCases))
	for i := range testCases {
		current[testCases[i].ID] = &testCases[i]
	}

	changedIDs, err := mutate(current)
	if err != nil {
		return dto.TestCaseChangeResponse{}, err
	}

	if len(changedIDs) > 0 {
		writes := make([]models.TestCase, 0, len(changedIDs))
		for _, testCase := range testCases {
			if _, ok := changedIDs[testCase.ID]; ok {
				writes = append(writes, testCase)
			}
		}
		if _, err := s.repo.Upsert(ctx, writes); err != nil {
			return dto.TestCaseChangeResponse{}, fmt.Errorf("save test cases: %w", err)
		}
		s.changed(ctx, exerciseID, trigger)
	}

	return dto.TestCaseChangeResponse{
		Changed:   len(changedIDs) > 0,
		TestCases: dto.NewTestCaseResponseSlice(testCases),
	}, nil
}

func applyTestCaseUpdate(testCase *models.TestCase, update dto.TestCaseUpdateRequest) bool {
	changed := false
	if update.Weight != nil && *update.Weight != testCase.Weight {
		testCase.Weight = *update.Weight
		changed = true
	}
	if update.BonusMultiplier != nil && *update.BonusMultiplier != testCase.BonusMultiplier {
		testCase.BonusMultiplier = *update.BonusMultiplier
		changed = true
	}
	if update.BonusPoints != nil && *update.BonusPoints != testCase.BonusPoints {
		testCase.BonusPoints = *update.BonusPoints
		changed = true
	}
	if update.Visibility != nil {
		visibility := models.TestCaseVisibility(*update.Visibility)
		if visibility != testCase.Visibility {
			testCase.Visibility = visibility
			changed = true
		}
	}
	return changed
}

// changed invalidates the cached registry and tells live subscribers.
func (s *testCaseService) changed(ctx context.Context, exerciseID uint, trigger string) {
	observability.RegistryChanges().WithLabelValues(trigger).Inc()

	if s.cache != nil {
		if err := s.cache.Del(ctx, activeTestCasesCacheKey(exerciseID)).Err(); err != nil {
			s.logger.Warn().Err(err).Uint("exercise_id", exerciseID).Msg("failed to invalidate test case cache")
		}
	}

	if s.events == nil {
		return
	}
	testCases, err := s.repo.ListByExercise(ctx, exerciseID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("exercise_id", exerciseID).Msg("failed to load test cases for change event")
		return
	}
	s.events.Publish(ctx, dto.TestCaseEvent{
		ExerciseID: exerciseID,
		Trigger:    trigger,
		TestCases:  dto.NewTestCaseResponseSlice(testCases),
	})
}
