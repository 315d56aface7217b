package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
)

func setupGradingTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.ProgrammingExercise{},
		&models.SubmissionPolicy{},
		&models.StaticCodeAnalysisCategory{},
		&models.TestCase{},
		&models.Participation{},
		&models.Submission{},
		&models.Result{},
		&models.Feedback{},
		&models.Notification{},
	))
	return db
}

func TestTestCaseRepositoryUpsertIsKeyedCaseInsensitively(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewTestCaseRepository(db)
	ctx := context.Background()

	affected, err := repo.Upsert(ctx, []models.TestCase{models.NewTestCase(1, "testSort"), models.NewTestCase(2, "testSort")})
	require.NoError(t, err)
	require.Equal(t, int64(2), affected)

	// the same name in another case is the same key and must not create a row
	affected, err = repo.Upsert(ctx, []models.TestCase{models.NewTestCase(1, "TESTSORT")})
	require.NoError(t, err)
	require.Equal(t, int64(0), affected)

	stored, err := repo.ListByExercise(ctx, 1)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "testSort", stored[0].TestName)

	stored[0].Active = false
	stored[0].Weight = 3
	_, err = repo.Upsert(ctx, stored)
	require.NoError(t, err)

	active, err := repo.ListActive(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := repo.ListByExercise(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, 3.0, all[0].Weight)
}

func TestResultRepositoryReplacesFeedback(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewResultRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	first := models.Feedback{Text: "testA", Type: models.FeedbackTypeAutomatic, Details: map[string]interface{}{"line": 3}}
	first.SetCredits(4)
	result := models.Result{SubmissionID: 1, ParticipationID: 9, AssessmentType: models.AssessmentTypeAutomatic, CompletionDate: &now, Feedbacks: []models.Feedback{first}}
	require.NoError(t, repo.Create(ctx, &result))
	require.NotZero(t, result.ID)

	manual := models.Feedback{Text: "Good job", Type: models.FeedbackTypeManual}
	result.Feedbacks = []models.Feedback{manual}
	result.AssessmentType = models.AssessmentTypeSemiAutomatic
	require.NoError(t, repo.Update(ctx, &result))

	stored, err := repo.GetWithFeedback(ctx, result.ID)
	require.NoError(t, err)
	require.Len(t, stored.Feedbacks, 1)
	require.Equal(t, "Good job", stored.Feedbacks[0].Text)
	require.Equal(t, models.AssessmentTypeSemiAutomatic, stored.AssessmentType)

	second := models.Result{SubmissionID: 2, ParticipationID: 9, AssessmentType: models.AssessmentTypeAutomatic}
	require.NoError(t, repo.Create(ctx, &second))

	latest, err := repo.Latest(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, second.ID, latest.ID)

	_, err = repo.Latest(ctx, 404)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSubmissionRepositoryFindOrCreate(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	first, err := repo.FindOrCreate(ctx, 5, "abc123", now)
	require.NoError(t, err)
	again, err := repo.FindOrCreate(ctx, 5, "abc123", now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)

	_, err = repo.FindOrCreate(ctx, 5, "def456", now)
	require.NoError(t, err)

	count, err := repo.CountByParticipation(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestExerciseRepositoryPreloadsPolicy(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewExerciseRepository(db)
	ctx := context.Background()

	exercise := models.ProgrammingExercise{Title: "Sorting", ProgrammingLanguage: models.LanguageJava, MaxPoints: 10, AssessmentType: models.AssessmentTypeAutomatic}
	require.NoError(t, db.Create(&exercise).Error)
	policy := models.SubmissionPolicy{ExerciseID: exercise.ID, Type: models.SubmissionPolicyLockRepository, SubmissionLimit: 5, Active: true}
	require.NoError(t, db.Create(&policy).Error)

	stored, err := repo.GetByID(ctx, exercise.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SubmissionPolicy)
	require.True(t, stored.SubmissionPolicy.IsLockPolicy())

	categories := NewStaticCodeAnalysisCategoryRepository(db)
	require.NoError(t, db.Create(&models.StaticCodeAnalysisCategory{ExerciseID: exercise.ID, Name: "Bad Practice", Penalty: 1, State: models.CategoryStateGraded}).Error)
	list, err := categories.Categories(ctx, exercise.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
