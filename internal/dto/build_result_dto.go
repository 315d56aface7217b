package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/gema-grader/internal/models"
)

// BuildResultRequest is the report a CI build sends after running the tests of a commit.
type BuildResultRequest struct {
	ParticipationID           uint                            `json:"participation_id" validate:"required,gt=0"`
	CommitHash                string                          `json:"commit_hash" validate:"required,max=64"`
	BuildRunDate              time.Time                       `json:"build_run_date" validate:"required"`
	Tests                     []BuildTestCaseReport           `json:"tests" validate:"dive"`
	StaticCodeAnalysisReports []StaticCodeAnalysisReportInput `json:"static_code_analysis_reports" validate:"dive"`
}

// BuildTestCaseReport is the outcome of a single executed test.
type BuildTestCaseReport struct {
	Name       string   `json:"name" validate:"required,max=512"`
	Successful bool     `json:"successful"`
	Messages   []string `json:"messages"`
}

// StaticCodeAnalysisReportInput groups the issues one tool found.
type StaticCodeAnalysisReportInput struct {
	Tool   string                         `json:"tool" validate:"required,max=64"`
	Issues []StaticCodeAnalysisIssueInput `json:"issues" validate:"dive"`
}

// StaticCodeAnalysisIssueInput is one finding of a static code analysis tool.
type StaticCodeAnalysisIssueInput struct {
	FilePath string `json:"file_path" validate:"required"`
	Line     int    `json:"line" validate:"gte=0"`
	Category string `json:"category" validate:"required,max=128"`
	Rule     string `json:"rule" validate:"max=128"`
	Message  string `json:"message"`
}

// BuildResultResponse is returned once a report has been graded.
type BuildResultResponse struct {
	Result           ResultResponse `json:"result"`
	TestCasesChanged bool           `json:"test_cases_changed"`
}

// ToFeedback converts the report into automatic feedback: test outcomes in report
// order followed by one item per static code analysis issue.
func (r BuildResultRequest) ToFeedback() []models.Feedback {
	feedbacks := make([]models.Feedback, 0, len(r.Tests))
	for _, test := range r.Tests {
		feedback := models.Feedback{
			Text:       strings.TrimSpace(test.Name),
			DetailText: models.TruncateDetailText(strings.Join(test.Messages, "\n")),
			Type:       models.FeedbackTypeAutomatic,
		}
		feedback.SetPositive(test.Successful)
		feedbacks = append(feedbacks, feedback)
	}

	for _, report := range r.StaticCodeAnalysisReports {
		for _, issue := range report.Issues {
			feedback := models.Feedback{
				Text:       models.StaticCodeAnalysisFeedbackIdentifier + issue.Category,
				DetailText: models.TruncateDetailText(issue.Message),
				Type:       models.FeedbackTypeAutomatic,
				Reference:  fmt.Sprintf("%s:%d", issue.FilePath, issue.Line),
				Details: map[string]interface{}{
					"tool":      report.Tool,
					"file_path": issue.FilePath,
					"line":      issue.Line,
					"rule":      issue.Rule,
				},
			}
			feedback.SetPositive(false)
			feedbacks = append(feedbacks, feedback)
		}
	}

	return feedbacks
}
