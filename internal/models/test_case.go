package models

import (
	"strings"
	"time"
)

// TestCaseVisibility controls when a test case influences the score.
type TestCaseVisibility string

const (
	VisibilityAlways       TestCaseVisibility = "ALWAYS"
	VisibilityAfterDueDate TestCaseVisibility = "AFTER_DUE_DATE"
	VisibilityNever        TestCaseVisibility = "NEVER"
)

// IsValid reports whether the visibility is one of the known values.
func (v TestCaseVisibility) IsValid() bool {
	switch v {
	case VisibilityAlways, VisibilityAfterDueDate, VisibilityNever:
		return true
	default:
		return false
	}
}

// TestCaseType classifies test cases of Java-like exercises.
type TestCaseType string

const (
	TestCaseTypeStructural TestCaseType = "STRUCTURAL"
	TestCaseTypeBehavioral TestCaseType = "BEHAVIORAL"
	TestCaseTypeDefault    TestCaseType = "DEFAULT"
)

// Default test case weighting applied to newly discovered tests.
const (
	DefaultTestCaseWeight          = 1.0
	DefaultTestCaseBonusMultiplier = 1.0
	DefaultTestCaseBonusPoints     = 0.0
)

// TestCase is a registered test of a programming exercise. Test cases are never
// deleted; tests missing from a build are deactivated instead.
type TestCase struct {
	ID              uint               `gorm:"primaryKey" json:"id"`
	ExerciseID      uint               `gorm:"not null;uniqueIndex:idx_test_case_exercise_name" json:"exercise_id"`
	TestName        string             `gorm:"size:512;not null" json:"test_name"`
	NameKey         string             `gorm:"size:512;not null;uniqueIndex:idx_test_case_exercise_name" json:"-"`
	Weight          float64            `gorm:"not null;default:1" json:"weight"`
	BonusMultiplier float64            `gorm:"not null;default:1" json:"bonus_multiplier"`
	BonusPoints     float64            `gorm:"not null;default:0" json:"bonus_points"`
	Visibility      TestCaseVisibility `gorm:"size:32;not null;default:'ALWAYS'" json:"visibility"`
	Active          bool               `gorm:"not null" json:"active"`
	Type            TestCaseType       `gorm:"size:32;not null;default:'DEFAULT'" json:"type"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// NewTestCase builds a test case with the default weighting.
func NewTestCase(exerciseID uint, name string) TestCase {
	return TestCase{
		ExerciseID:      exerciseID,
		TestName:        name,
		NameKey:         TestNameKey(name),
		Weight:          DefaultTestCaseWeight,
		BonusMultiplier: DefaultTestCaseBonusMultiplier,
		BonusPoints:     DefaultTestCaseBonusPoints,
		Visibility:      VisibilityAlways,
		Active:          true,
		Type:            TestCaseTypeDefault,
	}
}

// TestNameKey is the case-insensitive identity of a test name.
func TestNameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsInvisible reports whether the test case never counts towards the score.
func (t TestCase) IsInvisible() bool {
	return t.Visibility == VisibilityNever
}

// IsAfterDueDate reports whether the test case only counts after the due date.
func (t TestCase) IsAfterDueDate() bool {
	return t.Visibility == VisibilityAfterDueDate
}
