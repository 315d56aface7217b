package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
)

// ParticipationRepository exposes participations and their submissions.
type ParticipationRepository interface {
	GetByID(ctx context.Context, id uint) (models.Participation, error)
	ListByExercise(ctx context.Context, exerciseID uint) ([]models.Participation, error)
	SetLocked(ctx context.Context, id uint, locked bool) error
}

// NewParticipationRepository constructs a participation repository.
func NewParticipationRepository(db *gorm.DB) ParticipationRepository {
	return &participationRepository{db: db}
}

type participationRepository struct {
	db *gorm.DB
}

func (r *participationRepository) GetByID(ctx context.Context, id uint) (models.Participation, error) {
	var participation models.Participation
	if err := r.db.WithContext(ctx).First(&participation, id).Error; err != nil {
		return models.Participation{}, err
	}
	return participation, nil
}

func (r *participationRepository) ListByExercise(ctx context.Context, exerciseID uint) ([]models.Participation, error) {
	var participations []models.Participation
	if err := r.db.WithContext(ctx).
		Where("exercise_id = ?", exerciseID).
		Order("id ASC").
		Find(&participations).Error; err != nil {
		return nil, err
	}
	return participations, nil
}

func (r *participationRepository) SetLocked(ctx context.Context, id uint, locked bool) error {
	return r.db.WithContext(ctx).
		Model(&models.Participation{}).
		Where("id = ?", id).
		Update("locked", locked).Error
}

// SubmissionRepository persists submissions of participations.
type SubmissionRepository interface {
	FindOrCreate(ctx context.Context, participationID uint, commitHash string, submittedAt time.Time) (models.Submission, error)
	CountByParticipation(ctx context.Context, participationID uint) (int64, error)
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

type submissionRepository struct {
	db *gorm.DB
}

func (r *submissionRepository) FindOrCreate(ctx context.Context, participationID uint, commitHash string, submittedAt time.Time) (models.Submission, error) {
	submission := models.Submission{
		ParticipationID: participationID,
		CommitHash:      commitHash,
		SubmissionDate:  submittedAt,
	}
	err := r.db.WithContext(ctx).
		Where("participation_id = ? AND commit_hash = ?", participationID, commitHash).
		FirstOrCreate(&submission).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) CountByParticipation(ctx context.Context, participationID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("participation_id = ?", participationID).
		Count(&count).Error
	return count, err
}
