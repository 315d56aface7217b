package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/database"
	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/grading"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
)

func setupGraderDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection keeps concurrent writers from tripping over shared-cache table locks
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	return db
}

type gradingFixture struct {
	exercise models.ProgrammingExercise
	solution models.Participation
	student  models.Participation
}

// seedExercise stores a Java exercise worth 10 points with a solution and a student participation.
func seedExercise(t *testing.T, db *gorm.DB, policy *models.SubmissionPolicy) gradingFixture {
	t.Helper()

	exercise := models.ProgrammingExercise{
		Title:               "Sorting",
		ProgrammingLanguage: models.LanguageJava,
		MaxPoints:           10,
		SubmissionPolicy:    policy,
	}
	require.NoError(t, db.Create(&exercise).Error)

	solution := models.Participation{ExerciseID: exercise.ID, Kind: models.ParticipationKindSolution}
	require.NoError(t, db.Create(&solution).Error)
	student := models.Participation{ExerciseID: exercise.ID, Kind: models.ParticipationKindStudent, StudentLogin: "student1"}
	require.NoError(t, db.Create(&student).Error)

	exercise.SolutionParticipationID = &solution.ID
	require.NoError(t, db.Model(&exercise).Update("solution_participation_id", solution.ID).Error)

	return gradingFixture{exercise: exercise, solution: solution, student: student}
}

type gradingStack struct {
	db             *gorm.DB
	testCases      TestCaseService
	notifications  NotificationService
	policies       SubmissionPolicyService
	results        ResultService
	calculator     *grading.Calculator
	buildResults   BuildResultService
	reEvaluation   ReEvaluationService
	resultRepo     repository.ResultRepository
	locker         KeyedLocker
	testCaseEvents TestCaseEventBroker
}

func newGradingStack(t *testing.T, db *gorm.DB) gradingStack {
	t.Helper()

	validate := validator.New()
	logger := zerolog.Nop()
	locker := NewMemoryLocker()

	exerciseRepo := repository.NewExerciseRepository(db)
	participationRepo := repository.NewParticipationRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	resultRepo := repository.NewResultRepository(db)

	events := NewTestCaseEventBroker(nil, "", logger)
	testCases := NewTestCaseService(repository.NewTestCaseRepository(db), exerciseRepo, locker, nil, time.Minute, events, validate, logger)
	notifications := NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, validate, logger)
	policies := NewSubmissionPolicyService(submissionRepo, NewParticipationRepositoryLocker(participationRepo), logger)
	calculator := grading.NewCalculator(repository.NewStaticCodeAnalysisCategoryRepository(db), policies, notifications, logger)
	results := NewResultService(resultRepo, policies, logger)

	return gradingStack{
		db:             db,
		testCases:      testCases,
		notifications:  notifications,
		policies:       policies,
		results:        results,
		calculator:     calculator,
		buildResults:   NewBuildResultService(participationRepo, exerciseRepo, submissionRepo, testCases, calculator, results, locker, validate, logger),
		reEvaluation:   NewReEvaluationService(exerciseRepo, participationRepo, resultRepo, testCases, calculator, locker, 2, logger),
		resultRepo:     resultRepo,
		locker:         locker,
		testCaseEvents: events,
	}
}

func buildReport(participationID uint, commit string, tests map[string]bool, order ...string) dto.BuildResultRequest {
	request := dto.BuildResultRequest{
		ParticipationID: participationID,
		CommitHash:      commit,
		BuildRunDate:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, name := range order {
		request.Tests = append(request.Tests, dto.BuildTestCaseReport{Name: name, Successful: tests[name]})
	}
	return request
}

func automaticFeedback(name string, positive bool) models.Feedback {
	feedback := models.Feedback{Text: name, Type: models.FeedbackTypeAutomatic}
	feedback.SetPositive(positive)
	return feedback
}
