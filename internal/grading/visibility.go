package grading

import (
	"time"

	"github.com/noah-isme/gema-grader/internal/models"
)

// FilterTestCasesForDueDate returns the test cases allowed to influence a score.
// NEVER test cases are always dropped, AFTER_DUE_DATE ones only before the due date.
func FilterTestCasesForDueDate(testCases []models.TestCase, isBeforeDueDate bool) []models.TestCase {
	filtered := make([]models.TestCase, 0, len(testCases))
	for _, testCase := range testCases {
		if testCase.IsInvisible() {
			continue
		}
		if isBeforeDueDate && testCase.IsAfterDueDate() {
			continue
		}
		filtered = append(filtered, testCase)
	}
	return filtered
}

// IsBeforeDueDate reports whether now lies before the participation's due date.
// An individual due date wins over the exercise due date; without any due date
// the exercise counts as past due.
func IsBeforeDueDate(participation models.Participation, exercise models.ProgrammingExercise, now time.Time) bool {
	dueDate := exercise.DueDate
	if participation.IndividualDueDate != nil {
		dueDate = participation.IndividualDueDate
	}
	if dueDate == nil {
		return false
	}
	return now.Before(*dueDate)
}

// RelevantTestCases selects the test cases that count for the participation at
// the given time. Template and solution participations see every test case,
// NEVER ones included: those earn credit against a weight sum that leaves them
// out, so a solution's credits may exceed score×maxPoints/100.
func RelevantTestCases(testCases []models.TestCase, participation models.Participation, exercise models.ProgrammingExercise, now time.Time) []models.TestCase {
	if participation.IsTemplateOrSolution() || exercise.IsSolutionParticipation(participation.ID) {
		out := make([]models.TestCase, len(testCases))
		copy(out, testCases)
		return out
	}

	beforeDueDate := FilterTestCasesForDueDate(testCases, true)
	afterDueDate := FilterTestCasesForDueDate(testCases, false)
	if IsBeforeDueDate(participation, exercise, now) {
		return beforeDueDate
	}
	return afterDueDate
}
