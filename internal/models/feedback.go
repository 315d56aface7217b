package models

import (
	"strings"

	"gorm.io/datatypes"
)

// FeedbackType describes who produced a feedback item.
type FeedbackType string

const (
	FeedbackTypeAutomatic        FeedbackType = "AUTOMATIC"
	FeedbackTypeManual           FeedbackType = "MANUAL"
	FeedbackTypeAutomaticAdapted FeedbackType = "AUTOMATIC_ADAPTED"
)

const (
	// StaticCodeAnalysisFeedbackIdentifier prefixes the text of static code analysis feedback.
	// The remainder of the text is the category name.
	StaticCodeAnalysisFeedbackIdentifier = "SCAFeedbackIdentifier:"
	// SubmissionPolicyFeedbackText marks feedback created by a penalty submission policy.
	SubmissionPolicyFeedbackText = "SubmissionPolicyPenalty"
	// MaxFeedbackDetailTextLength bounds the stored detail text.
	MaxFeedbackDetailTextLength = 5000
)

// Feedback is a single graded item of a result. Feedback belongs to exactly one
// result; use Copy when moving it to another result.
type Feedback struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ResultID   uint              `gorm:"index;not null" json:"result_id"`
	Text       string            `gorm:"size:512" json:"text"`
	DetailText string            `gorm:"type:text" json:"detail_text"`
	Type       FeedbackType      `gorm:"size:32;not null" json:"type"`
	Positive   *bool             `json:"positive"`
	Credits    *float64          `json:"credits"`
	Reference  string            `gorm:"size:255" json:"reference"`
	Visibility string            `gorm:"size:32" json:"visibility"`
	Details    datatypes.JSONMap `json:"details,omitempty"`
}

// IsStaticCodeAnalysis reports whether the feedback stems from a static code analysis tool.
func (f Feedback) IsStaticCodeAnalysis() bool {
	return strings.HasPrefix(f.Text, StaticCodeAnalysisFeedbackIdentifier)
}

// StaticCodeAnalysisCategory returns the category encoded in an SCA feedback text.
func (f Feedback) StaticCodeAnalysisCategory() string {
	return strings.TrimPrefix(f.Text, StaticCodeAnalysisFeedbackIdentifier)
}

// IsSubmissionPolicy reports whether the feedback was created by a submission policy.
func (f Feedback) IsSubmissionPolicy() bool {
	return f.Text == SubmissionPolicyFeedbackText
}

// IsAutomatic reports whether the feedback is plain automatic feedback.
func (f Feedback) IsAutomatic() bool {
	return f.Type == FeedbackTypeAutomatic
}

// IsTestFeedback reports whether the feedback refers to a test case.
func (f Feedback) IsTestFeedback() bool {
	return f.IsAutomatic() && !f.IsStaticCodeAnalysis() && !f.IsSubmissionPolicy()
}

// IsPositive treats an unset flag as negative.
func (f Feedback) IsPositive() bool {
	return f.Positive != nil && *f.Positive
}

// CreditsOrZero resolves unset credits to zero.
func (f Feedback) CreditsOrZero() float64 {
	if f.Credits == nil {
		return 0
	}
	return *f.Credits
}

// SetCredits stores a private copy of the value.
func (f *Feedback) SetCredits(credits float64) {
	f.Credits = &credits
}

// SetPositive stores a private copy of the value.
func (f *Feedback) SetPositive(positive bool) {
	f.Positive = &positive
}

// Copy returns a detached copy that shares no pointers with the receiver.
func (f Feedback) Copy() Feedback {
	out := Feedback{
		Text:       f.Text,
		DetailText: f.DetailText,
		Type:       f.Type,
		Reference:  f.Reference,
		Visibility: f.Visibility,
	}
	if f.Positive != nil {
		out.SetPositive(*f.Positive)
	}
	if f.Credits != nil {
		out.SetCredits(*f.Credits)
	}
	if f.Details != nil {
		out.Details = make(datatypes.JSONMap, len(f.Details))
		for k, v := range f.Details {
			out.Details[k] = v
		}
	}
	return out
}

// TruncateDetailText shortens text to the stored maximum.
func TruncateDetailText(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxFeedbackDetailTextLength {
		return text
	}
	return string(runes[:MaxFeedbackDetailTextLength])
}
