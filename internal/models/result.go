package models

import "time"

// AssessmentType describes how a result was produced.
type AssessmentType string

const (
	AssessmentTypeAutomatic     AssessmentType = "AUTOMATIC"
	AssessmentTypeSemiAutomatic AssessmentType = "SEMI_AUTOMATIC"
	AssessmentTypeManual        AssessmentType = "MANUAL"
	AssessmentTypeAutomaticAI   AssessmentType = "AUTOMATIC_AI"
)

// IsManual reports whether an instructor took part in the assessment.
func (a AssessmentType) IsManual() bool {
	return a == AssessmentTypeManual || a == AssessmentTypeSemiAutomatic
}

// Result is the graded outcome of a submission.
type Result struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	SubmissionID        uint           `gorm:"index;not null" json:"submission_id"`
	ParticipationID     uint           `gorm:"index;not null" json:"participation_id"`
	Score               float64        `gorm:"not null;default:0" json:"score"`
	TestCaseCount       int            `gorm:"not null;default:0" json:"test_case_count"`
	PassedTestCaseCount int            `gorm:"not null;default:0" json:"passed_test_case_count"`
	CodeIssueCount      int            `gorm:"not null;default:0" json:"code_issue_count"`
	AssessmentType      AssessmentType `gorm:"size:32;not null" json:"assessment_type"`
	CompletionDate      *time.Time     `json:"completion_date"`
	Rated               bool           `gorm:"not null;default:false" json:"rated"`
	AssessorID          *uint          `json:"assessor_id"`
	Feedbacks           []Feedback     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"feedbacks"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// IsManual reports whether the result is a manual or semi-automatic assessment.
func (r Result) IsManual() bool {
	return r.AssessmentType.IsManual()
}

// IsDraft reports whether a manual assessment is still in progress.
func (r Result) IsDraft() bool {
	return r.CompletionDate == nil
}

// AddFeedback appends feedback items to the result.
func (r *Result) AddFeedback(feedbacks ...Feedback) {
	r.Feedbacks = append(r.Feedbacks, feedbacks...)
}

// RemoveFeedbackIf drops every feedback item matching the predicate.
func (r *Result) RemoveFeedbackIf(predicate func(Feedback) bool) {
	kept := r.Feedbacks[:0]
	for _, feedback := range r.Feedbacks {
		if !predicate(feedback) {
			kept = append(kept, feedback)
		}
	}
	r.Feedbacks = kept
}
