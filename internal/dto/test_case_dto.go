package dto

import (
	"time"

	"github.com/noah-isme/gema-grader/internal/models"
)

// TestCaseResponse is the registry view of a test case.
type TestCaseResponse struct {
	ID              uint      `json:"id"`
	ExerciseID      uint      `json:"exercise_id"`
	TestName        string    `json:"test_name"`
	Weight          float64   `json:"weight"`
	BonusMultiplier float64   `json:"bonus_multiplier"`
	BonusPoints     float64   `json:"bonus_points"`
	Visibility      string    `json:"visibility"`
	Active          bool      `json:"active"`
	Type            string    `json:"type"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TestCaseUpdateRequest changes the grading configuration of one test case.
// Unset fields keep their current value.
type TestCaseUpdateRequest struct {
	ID              uint     `json:"id" validate:"required,gt=0"`
	Weight          *float64 `json:"weight,omitempty" validate:"omitempty,gte=0"`
	BonusMultiplier *float64 `json:"bonus_multiplier,omitempty" validate:"omitempty,gte=0"`
	BonusPoints     *float64 `json:"bonus_points,omitempty" validate:"omitempty,gte=0"`
	Visibility      *string  `json:"visibility,omitempty" validate:"omitempty,oneof=ALWAYS AFTER_DUE_DATE NEVER"`
}

// TestCaseUpdateBatch is the body of the registry configuration endpoint.
type TestCaseUpdateBatch struct {
	TestCases []TestCaseUpdateRequest `json:"test_cases" validate:"required,min=1,dive"`
}

// TestCaseChangeResponse reports a registry write.
type TestCaseChangeResponse struct {
	Changed   bool               `json:"changed"`
	TestCases []TestCaseResponse `json:"test_cases"`
}

// TestCaseConfigurationResponse is returned by registry writes made over HTTP.
// ReEvaluation is set when the caller asked to rescore existing results.
type TestCaseConfigurationResponse struct {
	TestCaseChangeResponse
	ReEvaluation *ReEvaluationSummary `json:"re_evaluation,omitempty"`
}

// TestCaseEvent is pushed to live subscribers when the registry of an exercise changes.
type TestCaseEvent struct {
	ExerciseID uint               `json:"exercise_id"`
	Trigger    string             `json:"trigger"`
	TestCases  []TestCaseResponse `json:"test_cases"`
	ChangedAt  time.Time          `json:"changed_at"`
}

// NewTestCaseResponse converts a test case model to DTO.
func NewTestCaseResponse(model models.TestCase) TestCaseResponse {
	return TestCaseResponse{
		ID:              model.ID,
		ExerciseID:      model.ExerciseID,
		TestName:        model.TestName,
		Weight:          model.Weight,
		BonusMultiplier: model.BonusMultiplier,
		BonusPoints:     model.BonusPoints,
		Visibility:      string(model.Visibility),
		Active:          model.Active,
		Type:            string(model.Type),
		UpdatedAt:       model.UpdatedAt,
	}
}

// NewTestCaseResponseSlice converts a slice to DTOs.
func NewTestCaseResponseSlice(items []models.TestCase) []TestCaseResponse {
	out := make([]TestCaseResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewTestCaseResponse(item))
	}
	return out
}
