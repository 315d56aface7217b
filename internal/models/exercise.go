package models

import (
	"strings"
	"time"
)

// ProgrammingLanguage identifies the language an exercise is written in.
type ProgrammingLanguage string

const (
	LanguageJava   ProgrammingLanguage = "JAVA"
	LanguageKotlin ProgrammingLanguage = "KOTLIN"
	LanguagePython ProgrammingLanguage = "PYTHON"
	LanguageC      ProgrammingLanguage = "C"
	LanguageGo     ProgrammingLanguage = "GO"
)

// IsJavaLike reports whether structural/behavioral test classification applies.
func (l ProgrammingLanguage) IsJavaLike() bool {
	switch ProgrammingLanguage(strings.ToUpper(string(l))) {
	case LanguageJava, LanguageKotlin:
		return true
	default:
		return false
	}
}

// ProgrammingExercise holds the grading configuration of a programming exercise.
type ProgrammingExercise struct {
	ID                           uint                `gorm:"primaryKey" json:"id"`
	Title                        string              `gorm:"size:255;not null" json:"title"`
	ProgrammingLanguage          ProgrammingLanguage `gorm:"size:32;not null" json:"programming_language"`
	MaxPoints                    float64             `gorm:"not null" json:"max_points"`
	BonusPoints                  float64             `gorm:"not null;default:0" json:"bonus_points"`
	MaxStaticCodeAnalysisPenalty *int                `json:"max_static_code_analysis_penalty"`
	StaticCodeAnalysisEnabled    bool                `gorm:"not null;default:false" json:"static_code_analysis_enabled"`
	AssessmentType               AssessmentType      `gorm:"size:32;not null;default:'AUTOMATIC'" json:"assessment_type"`
	DueDate                      *time.Time          `json:"due_date"`
	TemplateParticipationID      *uint               `json:"template_participation_id"`
	SolutionParticipationID      *uint               `json:"solution_participation_id"`
	SubmissionPolicy             *SubmissionPolicy   `gorm:"foreignKey:ExerciseID" json:"submission_policy,omitempty"`
	CreatedAt                    time.Time           `json:"created_at"`
	UpdatedAt                    time.Time           `json:"updated_at"`
}

// MaxStaticCodeAnalysisPenaltyPercent returns the configured cap, defaulting to 100 percent.
func (e ProgrammingExercise) MaxStaticCodeAnalysisPenaltyPercent() float64 {
	if e.MaxStaticCodeAnalysisPenalty == nil {
		return 100
	}
	return float64(*e.MaxStaticCodeAnalysisPenalty)
}

// ReachablePoints is the maximum number of points including bonus points.
func (e ProgrammingExercise) ReachablePoints() float64 {
	return e.MaxPoints + e.BonusPoints
}

// IsSolutionParticipation reports whether the participation id is the exercise's solution.
func (e ProgrammingExercise) IsSolutionParticipation(participationID uint) bool {
	return e.SolutionParticipationID != nil && *e.SolutionParticipationID == participationID
}

// StaticCodeAnalysisCategoryState controls how issues of a category are graded.
type StaticCodeAnalysisCategoryState string

const (
	// CategoryStateGraded penalizes issues of the category.
	CategoryStateGraded StaticCodeAnalysisCategoryState = "GRADED"
	// CategoryStateFeedback shows issues to students without penalty.
	CategoryStateFeedback StaticCodeAnalysisCategoryState = "FEEDBACK"
	// CategoryStateInactive hides issues entirely.
	CategoryStateInactive StaticCodeAnalysisCategoryState = "INACTIVE"
)

// StaticCodeAnalysisCategory groups static code analysis issues for grading.
type StaticCodeAnalysisCategory struct {
	ID         uint                            `gorm:"primaryKey" json:"id"`
	ExerciseID uint                            `gorm:"index;not null" json:"exercise_id"`
	Name       string                          `gorm:"size:128;not null" json:"name"`
	Penalty    float64                         `gorm:"not null;default:0" json:"penalty"`
	MaxPenalty *float64                        `json:"max_penalty"`
	State      StaticCodeAnalysisCategoryState `gorm:"size:16;not null;default:'FEEDBACK'" json:"state"`
}
