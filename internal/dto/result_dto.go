package dto

import (
	"time"

	"github.com/noah-isme/gema-grader/internal/models"
)

// FeedbackResponse represents one graded feedback item.
type FeedbackResponse struct {
	ID         uint                   `json:"id"`
	Text       string                 `json:"text"`
	DetailText string                 `json:"detail_text,omitempty"`
	Type       string                 `json:"type"`
	Positive   *bool                  `json:"positive,omitempty"`
	Credits    *float64               `json:"credits,omitempty"`
	Reference  string                 `json:"reference,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// ResultResponse represents a result to API consumers.
type ResultResponse struct {
	ID                  uint               `json:"id"`
	SubmissionID        uint               `json:"submission_id"`
	ParticipationID     uint               `json:"participation_id"`
	Score               float64            `json:"score"`
	Rated               bool               `json:"rated"`
	AssessmentType      string             `json:"assessment_type"`
	TestCaseCount       int                `json:"test_case_count"`
	PassedTestCaseCount int                `json:"passed_test_case_count"`
	CodeIssueCount      int                `json:"code_issue_count"`
	CompletionDate      *time.Time         `json:"completion_date,omitempty"`
	Feedbacks           []FeedbackResponse `json:"feedbacks"`
}

// ReEvaluationSummary reports a bulk re-scoring run.
type ReEvaluationSummary struct {
	ExerciseID     uint `json:"exercise_id"`
	Participations int  `json:"participations"`
	Updated        int  `json:"updated"`
	Skipped        int  `json:"skipped"`
}

// NewFeedbackResponse converts a feedback model to DTO.
func NewFeedbackResponse(model models.Feedback) FeedbackResponse {
	details := map[string]interface{}(nil)
	if model.Details != nil {
		details = map[string]interface{}(model.Details)
	}

	return FeedbackResponse{
		ID:         model.ID,
		Text:       model.Text,
		DetailText: model.DetailText,
		Type:       string(model.Type),
		Positive:   model.Positive,
		Credits:    model.Credits,
		Reference:  model.Reference,
		Details:    details,
	}
}

// NewResultResponse converts a result model to DTO.
func NewResultResponse(model models.Result) ResultResponse {
	feedbacks := make([]FeedbackResponse, 0, len(model.Feedbacks))
	for _, feedback := range model.Feedbacks {
		feedbacks = append(feedbacks, NewFeedbackResponse(feedback))
	}

	return ResultResponse{
		ID:                  model.ID,
		SubmissionID:        model.SubmissionID,
		ParticipationID:     model.ParticipationID,
		Score:               model.Score,
		Rated:               model.Rated,
		AssessmentType:      string(model.AssessmentType),
		TestCaseCount:       model.TestCaseCount,
		PassedTestCaseCount: model.PassedTestCaseCount,
		CodeIssueCount:      model.CodeIssueCount,
		CompletionDate:      model.CompletionDate,
		Feedbacks:           feedbacks,
	}
}
