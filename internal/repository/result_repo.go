package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-grader/internal/models"
)

// ResultRepository persists results together with their feedback.
type ResultRepository interface {
	Create(ctx context.Context, result *models.Result) error
	// Update saves the result and replaces its stored feedback with result.Feedbacks.
	Update(ctx context.Context, result *models.Result) error
	GetWithFeedback(ctx context.Context, id uint) (models.Result, error)
	// Latest returns the most recently inserted result of a participation.
	Latest(ctx context.Context, participationID uint) (models.Result, error)
}

// NewResultRepository constructs a result repository.
func NewResultRepository(db *gorm.DB) ResultRepository {
	return &resultRepository{db: db}
}

type resultRepository struct {
	db *gorm.DB
}

func (r *resultRepository) Create(ctx context.Context, result *models.Result) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(result).Error; err != nil {
			return err
		}
		return replaceFeedback(tx, result)
	})
}

func (r *resultRepository) Update(ctx context.Context, result *models.Result) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(result).Error; err != nil {
			return err
		}
		return replaceFeedback(tx, result)
	})
}

func replaceFeedback(tx *gorm.DB, result *models.Result) error {
	if err := tx.Where("result_id = ?", result.ID).Delete(&models.Feedback{}).Error; err != nil {
		return err
	}
	if len(result.Feedbacks) == 0 {
		return nil
	}
	for i := range result.Feedbacks {
		result.Feedbacks[i].ID = 0
		result.Feedbacks[i].ResultID = result.ID
	}
	return tx.Create(&result.Feedbacks).Error
}

func (r *resultRepository) GetWithFeedback(ctx context.Context, id uint) (models.Result, error) {
	var result models.Result
	err := r.db.WithContext(ctx).
		Preload("Feedbacks", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("id ASC")
		}).
		First(&result, id).Error
	if err != nil {
		return models.Result{}, err
	}
	return result, nil
}

func (r *resultRepository) Latest(ctx context.Context, participationID uint) (models.Result, error) {
	var results []models.Result
	query := r.db.WithContext(ctx).
		Where("participation_id = ?", participationID).
		Order("id DESC").
		Limit(1).
		Find(&results)
	if query.Error != nil {
		return models.Result{}, query.Error
	}
	// the first build of a participation has no result yet; Find keeps that out of the query log
	if query.RowsAffected == 0 || len(results) == 0 {
		return models.Result{}, gorm.ErrRecordNotFound
	}
	return results[0], nil
}
