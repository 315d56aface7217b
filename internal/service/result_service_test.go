package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/models"
)

func seedSubmission(t *testing.T, stack gradingStack, participationID uint, commit string) models.Submission {
	t.Helper()
	submission := models.Submission{ParticipationID: participationID, CommitHash: commit, SubmissionDate: time.Now().UTC()}
	require.NoError(t, stack.db.Create(&submission).Error)
	return submission
}

func newAutomaticResult(submissionID uint, completed time.Time, feedbacks ...models.Feedback) *models.Result {
	return &models.Result{
		SubmissionID:        submissionID,
		AssessmentType:      models.AssessmentTypeAutomatic,
		CompletionDate:      &completed,
		TestCaseCount:       2,
		PassedTestCaseCount: 1,
		Feedbacks:           feedbacks,
	}
}

func creditedFeedback(name string, feedbackType models.FeedbackType, credits float64) models.Feedback {
	feedback := models.Feedback{Text: name, Type: feedbackType}
	feedback.SetCredits(credits)
	feedback.SetPositive(credits > 0)
	return feedback
}

func TestResultServiceMergesIntoManualAssessment(t *testing.T) {
	db := setupGraderDB(t)
	fixture := seedExercise(t, db, nil)
	stack := newGradingStack(t, db)
	ctx := context.Background()

	oldSubmission := seedSubmission(t, stack, fixture.student.ID, "aaa")
	assessedAt := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	manual := models.Result{
		SubmissionID:    oldSubmission.ID,
		ParticipationID: fixture.student.ID,
		AssessmentType:  models.AssessmentTypeSemiAutomatic,
		CompletionDate:  &assessedAt,
		Score:           50,
		Feedbacks: []models.Feedback{
			creditedFeedback("Good job", models.FeedbackTypeManual, 2),
			creditedFeedback("testOld", models.FeedbackTypeAutomatic, 3),
		},
	}
	require.NoError(t, stack.resultRepo.Create(ctx, &manual))

	newSubmission := seedSubmission(t, stack, fixture.student.ID, "bbb")
	completed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	incoming := newAutomaticResult(newSubmission.ID, completed,
		creditedFeedback("testA", models.FeedbackTypeAutomatic, 5),
		creditedFeedback("testB", models.FeedbackTypeAutomatic, 0),
	)

	saved, err := stack.results.ProcessNewAutomaticResult(ctx, fixture.student, fixture.exercise, incoming)
	require.NoError(t, err)
	require.Equal(t, manual.ID, saved.ID)
	require.InDelta(t, 70.0, saved.Score, 1e-9)
	require.Equal(t, models.AssessmentTypeSemiAutomatic, saved.AssessmentType)
	require.Equal(t, 2, saved.TestCaseCount)
	require.Equal(t, 1, saved.PassedTestCaseCount)
	require.NotNil(t, saved.CompletionDate)
	require.True(t, completed.Equal(*saved.CompletionDate))

	stored, err := stack.resultRepo.GetWithFeedback(ctx, manual.ID)
	require.NoError(t, err)
	texts := make([]string, 0, len(stored.Feedbacks))
	for _, feedback := range stored.Feedbacks {
		texts = append(texts, feedback.Text)
	}
	require.Equal(t, []string{"Good job", "testA", "testB"}, texts)

	var count int64
	require.NoError(t, db.Model(&models.Result{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	// merged feedback is copied, not shared with the incoming result
	incoming.Feedbacks[0].SetCredits(99)
	require.InDelta(t, 5.0, saved.Feedbacks[1].CreditsOrZero(), 1e-9)
}

func TestResultServiceKeepsDraftCompletionDate(t *testing.T) {
	db := setupGraderDB(t)
	fixture := seedExercise(t, db, nil)
	stack := newGradingStack(t, db)
	ctx := context.Background()

	submission := seedSubmission(t, stack, fixture.student.ID, "aaa")
	draft := models.Result{
		SubmissionID:    submission.ID,
		ParticipationID: fixture.student.ID,
		AssessmentType:  models.AssessmentTypeManual,
		Feedbacks:       []models.Feedback{creditedFeedback("Needs work", models.FeedbackTypeManual, 1)},
	}
	require.NoError(t, stack.resultRepo.Create(ctx, &draft))

	incoming := newAutomaticResult(submission.ID, time.Now().UTC(), creditedFeedback("testA", models.FeedbackTypeAutomatic, 5))
	saved, err := stack.results.ProcessNewAutomaticResult(ctx, fixture.student, fixture.exercise, incoming)
	require.NoError(t, err)
	require.Equal(t, draft.ID, saved.ID)
	require.Nil(t, saved.CompletionDate)
	require.InDelta(t, 60.0, saved.Score, 1e-9)
}

func TestResultServiceCreatesResultForAutomaticOrPractice(t *testing.T) {
	db := setupGraderDB(t)
	fixture := seedExercise(t, db, nil)
	stack := newGradingStack(t, db)
	ctx := context.Background()

	submission := seedSubmission(t, stack, fixture.student.ID, "aaa")

	first, err := stack.results.ProcessNewAutomaticResult(ctx, fixture.student, fixture.exercise,
		newAutomaticResult(submission.ID, time.Now().UTC(), creditedFeedback("testA", models.FeedbackTypeAutomatic, 5)))
	require.NoError(t, err)
	require.NotZero(t, first.ID)
	require.Equal(t, fixture.student.ID, first.ParticipationID)

	manual := models.Result{SubmissionID: submission.ID, ParticipationID: fixture.student.ID, AssessmentType: models.AssessmentTypeManual}
	require.NoError(t, stack.resultRepo.Create(ctx, &manual))

	practice := fixture.student
	practice.PracticeMode = true
	second, err := stack.results.ProcessNewAutomaticResult(ctx, practice, fixture.exercise,
		newAutomaticResult(submission.ID, time.Now().UTC(), creditedFeedback("testA", models.FeedbackTypeAutomatic, 5)))
	require.NoError(t, err)
	require.NotEqual(t, manual.ID, second.ID)
	require.NotEqual(t, first.ID, second.ID)

	latest, err := stack.results.Latest(ctx, fixture.student.ID)
	require.NoError(t, err)
	require.Equal(t, second.ID, latest.ID)
	require.Len(t, latest.Feedbacks, 1)

	_, err = stack.results.Latest(ctx, fixture.solution.ID)
	require.ErrorIs(t, err, ErrResultNotFound)
}

func TestResultServiceLocksRepositoryWhenLimitReached(t *testing.T) {
	db := setupGraderDB(t)
	fixture := seedExercise(t, db, &models.SubmissionPolicy{
		Type:            models.SubmissionPolicyLockRepository,
		SubmissionLimit: 1,
		Active:          true,
	})
	stack := newGradingStack(t, db)
	ctx := context.Background()

	exercise, err := repositoryExercise(stack, fixture.exercise.ID)
	require.NoError(t, err)
	require.True(t, exercise.SubmissionPolicy.IsLockPolicy())

	submission := seedSubmission(t, stack, fixture.student.ID, "aaa")
	_, err = stack.results.ProcessNewAutomaticResult(ctx, fixture.student, exercise,
		newAutomaticResult(submission.ID, time.Now().UTC(), creditedFeedback("testA", models.FeedbackTypeAutomatic, 5)))
	require.NoError(t, err)

	var stored models.Participation
	require.NoError(t, db.First(&stored, fixture.student.ID).Error)
	require.True(t, stored.Locked)
}

func repositoryExercise(stack gradingStack, id uint) (models.ProgrammingExercise, error) {
	var exercise models.ProgrammingExercise
	err := stack.db.Preload("SubmissionPolicy").First(&exercise, id).Error
	return exercise, err
}
