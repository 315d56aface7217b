package service

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
)

// SubmissionCounter counts the submissions of a participation.
type SubmissionCounter interface {
	CountByParticipation(ctx context.Context, participationID uint) (int64, error)
}

// RepositoryLocker revokes write access to the repository of a participation.
type RepositoryLocker interface {
	LockRepository(ctx context.Context, participation models.Participation) error
}

// SubmissionPolicyService evaluates submission policies of exercises.
type SubmissionPolicyService interface {
	Penalty(ctx context.Context, participation models.Participation, policy models.SubmissionPolicy) (float64, error)
	PenaltyFeedback(policy models.SubmissionPolicy, penalty float64) models.Feedback
	ShouldLock(ctx context.Context, participation models.Participation, policy *models.SubmissionPolicy) (bool, error)
	// Enforce locks the repository when an active lock policy is exhausted and
	// reports whether it did.
	Enforce(ctx context.Context, participation models.Participation, policy *models.SubmissionPolicy) (bool, error)
}

type submissionPolicyService struct {
	submissions SubmissionCounter
	locker      RepositoryLocker
	logger      zerolog.Logger
}

// NewSubmissionPolicyService constructs the evaluator. A nil locker makes lock
// policies a no-op.
func NewSubmissionPolicyService(submissions SubmissionCounter, locker RepositoryLocker, logger zerolog.Logger) SubmissionPolicyService {
	return &submissionPolicyService{
		submissions: submissions,
		locker:      locker,
		logger:      logger.With().Str("component", "submission_policy_service").Logger(),
	}
}

func (s *submissionPolicyService) Penalty(ctx context.Context, participation models.Participation, policy models.SubmissionPolicy) (float64, error) {
	if !policy.IsPenaltyPolicy() {
		return 0, nil
	}

	count, err := s.submissions.CountByParticipation(ctx, participation.ID)
	if err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}

	exceeding := math.Max(0, float64(count)-float64(policy.SubmissionLimit))
	return exceeding * policy.ExceedingPenalty, nil
}

func (s *submissionPolicyService) PenaltyFeedback(policy models.SubmissionPolicy, penalty float64) models.Feedback {
	feedback := models.Feedback{
		Text: models.SubmissionPolicyFeedbackText,
		DetailText: fmt.Sprintf(
			"The submission limit of %d was exceeded. %.2f points are deducted for each further submission, %.2f in total.",
			policy.SubmissionLimit, policy.ExceedingPenalty, penalty,
		),
		Type: models.FeedbackTypeAutomatic,
	}
	feedback.SetCredits(-penalty)
	feedback.SetPositive(false)
	return feedback
}

func (s *submissionPolicyService) ShouldLock(ctx context.Context, participation models.Participation, policy *models.SubmissionPolicy) (bool, error) {
	if !policy.IsLockPolicy() || participation.PracticeMode || participation.IsTemplateOrSolution() {
		return false, nil
	}

	count, err := s.submissions.CountByParticipation(ctx, participation.ID)
	if err != nil {
		return false, fmt.Errorf("count submissions: %w", err)
	}
	return count >= int64(policy.SubmissionLimit), nil
}

func (s *submissionPolicyService) Enforce(ctx context.Context, participation models.Participation, policy *models.SubmissionPolicy) (bool, error) {
	if s.locker == nil || participation.Locked {
		return false, nil
	}

	lock, err := s.ShouldLock(ctx, participation, policy)
	if err != nil || !lock {
		return false, err
	}

	if err := s.locker.LockRepository(ctx, participation); err != nil {
		return false, fmt.Errorf("lock repository: %w", err)
	}

	s.logger.Info().
		Uint("participation_id", participation.ID).
		Int("submission_limit", policy.SubmissionLimit).
		Msg("submission limit reached, repository locked")
	return true, nil
}

type participationRepositoryLocker struct {
	participations repository.ParticipationRepository
}

// NewParticipationRepositoryLocker records the lock on the participation itself.
func NewParticipationRepositoryLocker(participations repository.ParticipationRepository) RepositoryLocker {
	return &participationRepositoryLocker{participations: participations}
}

func (l *participationRepositoryLocker) LockRepository(ctx context.Context, participation models.Participation) error {
	return l.participations.SetLocked(ctx, participation.ID, true)
}
