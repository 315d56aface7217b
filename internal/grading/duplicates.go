package grading

import (
	"context"
	"fmt"

	"github.com/noah-isme/gema-grader/internal/models"
)

const (
	duplicateTestCaseSuffix     = " - Duplicate Test Case!"
	duplicateTestCaseDetailText = "This is a duplicate test case. Please review all your test cases and verify that your test cases have unique names!"
)

// DuplicateNotifier informs editors and instructors about duplicate test names.
type DuplicateNotifier interface {
	NotifyDuplicateTestCases(ctx context.Context, exercise models.ProgrammingExercise, names []string) error
}

// DuplicateDetector flags test feedback that shares a case-insensitive name.
type DuplicateDetector struct {
	notifier DuplicateNotifier
}

// NewDuplicateDetector builds a detector. A nil notifier disables notifications.
func NewDuplicateDetector(notifier DuplicateNotifier) *DuplicateDetector {
	return &DuplicateDetector{notifier: notifier}
}

// DuplicateNames returns the text of every test feedback whose name was already
// seen earlier in the list. Three feedbacks sharing a name yield two entries.
func DuplicateNames(feedbacks []models.Feedback) []string {
	seen := make(map[string]struct{}, len(feedbacks))
	var duplicates []string
	for _, feedback := range feedbacks {
		if !feedback.IsAutomatic() || feedback.IsStaticCodeAnalysis() {
			continue
		}
		key := models.TestNameKey(feedback.Text)
		if _, ok := seen[key]; ok {
			duplicates = append(duplicates, feedback.Text)
			continue
		}
		seen[key] = struct{}{}
	}
	return duplicates
}

// Detect returns one negative marker feedback per duplicate and notifies once.
// The caller decides where the markers go.
func (d *DuplicateDetector) Detect(ctx context.Context, exercise models.ProgrammingExercise, feedbacks []models.Feedback) ([]models.Feedback, error) {
	names := DuplicateNames(feedbacks)
	if len(names) == 0 {
		return nil, nil
	}

	markers := make([]models.Feedback, 0, len(names))
	for _, name := range names {
		marker := models.Feedback{
			Text:       name + duplicateTestCaseSuffix,
			DetailText: duplicateTestCaseDetailText,
			Type:       models.FeedbackTypeAutomatic,
		}
		marker.SetPositive(false)
		markers = append(markers, marker)
	}

	if d != nil && d.notifier != nil {
		if err := d.notifier.NotifyDuplicateTestCases(ctx, exercise, names); err != nil {
			return markers, fmt.Errorf("notify duplicate test cases: %w", err)
		}
	}
	return markers, nil
}

// DetectInResult appends markers to the result and reports whether duplicates exist.
func (d *DuplicateDetector) DetectInResult(ctx context.Context, exercise models.ProgrammingExercise, result *models.Result) (bool, error) {
	markers, err := d.Detect(ctx, exercise, result.Feedbacks)
	result.AddFeedback(markers...)
	return len(markers) > 0, err
}
