package models

import "time"

// ParticipationKind distinguishes student repositories from the exercise's
// template and solution repositories.
type ParticipationKind string

const (
	ParticipationKindStudent  ParticipationKind = "STUDENT"
	ParticipationKindTemplate ParticipationKind = "TEMPLATE"
	ParticipationKindSolution ParticipationKind = "SOLUTION"
)

// Participation links a student (or the exercise itself) to a repository.
type Participation struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	ExerciseID        uint              `gorm:"index;not null" json:"exercise_id"`
	StudentLogin      string            `gorm:"size:128" json:"student_login"`
	Kind              ParticipationKind `gorm:"size:16;not null;default:'STUDENT'" json:"kind"`
	PracticeMode      bool              `gorm:"not null;default:false" json:"practice_mode"`
	IndividualDueDate *time.Time        `json:"individual_due_date"`
	Locked            bool              `gorm:"not null;default:false" json:"locked"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// IsTemplateOrSolution reports whether the participation belongs to the exercise itself.
func (p Participation) IsTemplateOrSolution() bool {
	return p.Kind == ParticipationKindTemplate || p.Kind == ParticipationKindSolution
}

// IsSolution reports whether the participation is the exercise's solution.
func (p Participation) IsSolution() bool {
	return p.Kind == ParticipationKindSolution
}

// Submission is a single pushed commit of a participation.
type Submission struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ParticipationID uint      `gorm:"index;not null" json:"participation_id"`
	CommitHash      string    `gorm:"size:64;index" json:"commit_hash"`
	SubmissionDate  time.Time `json:"submission_date"`
	Results         []Result  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"results,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
