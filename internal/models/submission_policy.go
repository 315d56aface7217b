package models

// SubmissionPolicyType tags the variant of a submission policy.
type SubmissionPolicyType string

const (
	SubmissionPolicyNone              SubmissionPolicyType = "NONE"
	SubmissionPolicyLockRepository    SubmissionPolicyType = "LOCK_REPOSITORY"
	SubmissionPolicySubmissionPenalty SubmissionPolicyType = "SUBMISSION_PENALTY"
)

// SubmissionPolicy limits the number of graded submissions of a participation.
// ExceedingPenalty is only meaningful for SUBMISSION_PENALTY policies.
type SubmissionPolicy struct {
	ID               uint                 `gorm:"primaryKey" json:"id"`
	ExerciseID       uint                 `gorm:"uniqueIndex;not null" json:"exercise_id"`
	Type             SubmissionPolicyType `gorm:"size:32;not null;default:'NONE'" json:"type"`
	SubmissionLimit  int                  `gorm:"not null;default:0" json:"submission_limit"`
	ExceedingPenalty float64              `gorm:"not null;default:0" json:"exceeding_penalty"`
	Active           bool                 `gorm:"not null;default:false" json:"active"`
}

// IsPenaltyPolicy reports whether the policy deducts points.
func (p *SubmissionPolicy) IsPenaltyPolicy() bool {
	return p != nil && p.Active && p.Type == SubmissionPolicySubmissionPenalty
}

// IsLockPolicy reports whether the policy locks the repository.
func (p *SubmissionPolicy) IsLockPolicy() bool {
	return p != nil && p.Active && p.Type == SubmissionPolicyLockRepository
}
