package grading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/models"
)

func TestDuplicateNamesFlagsEveryRepeat(t *testing.T) {
	feedbacks := []models.Feedback{
		testFeedback("testFoo", true),
		testFeedback("testfoo", false),
		testFeedback("TESTFOO", true),
		testFeedback("testBar", true),
		scaFeedback("Style"),
		scaFeedback("Style"),
		{Text: "testBar", Type: models.FeedbackTypeManual},
	}

	require.Equal(t, []string{"testfoo", "TESTFOO"}, DuplicateNames(feedbacks))
}

func TestDuplicateDetectorNotifiesOncePerCall(t *testing.T) {
	notifier := &recordingNotifier{}
	detector := NewDuplicateDetector(notifier)
	result := &models.Result{Feedbacks: []models.Feedback{
		testFeedback("a", true),
		testFeedback("A", true),
		testFeedback("b", true),
		testFeedback("B", true),
	}}

	found, err := detector.DetectInResult(context.Background(), models.ProgrammingExercise{ID: 1}, result)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, notifier.calls, 1)
	require.Equal(t, []string{"A", "B"}, notifier.calls[0])
	require.Len(t, result.Feedbacks, 6)
	require.Equal(t, "A - Duplicate Test Case!", result.Feedbacks[4].Text)
	require.Equal(t, "B - Duplicate Test Case!", result.Feedbacks[5].Text)
}

func TestDuplicateDetectorWithoutDuplicates(t *testing.T) {
	notifier := &recordingNotifier{}
	result := &models.Result{Feedbacks: []models.Feedback{testFeedback("a", true)}}

	found, err := NewDuplicateDetector(notifier).DetectInResult(context.Background(), models.ProgrammingExercise{}, result)
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, notifier.calls)
	require.Len(t, result.Feedbacks, 1)
}
