package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
)

// ExerciseRepository exposes the grading configuration of programming exercises.
type ExerciseRepository interface {
	GetByID(ctx context.Context, id uint) (models.ProgrammingExercise, error)
}

// NewExerciseRepository constructs an exercise repository.
func NewExerciseRepository(db *gorm.DB) ExerciseRepository {
	return &exerciseRepository{db: db}
}

type exerciseRepository struct {
	db *gorm.DB
}

func (r *exerciseRepository) GetByID(ctx context.Context, id uint) (models.ProgrammingExercise, error) {
	var exercise models.ProgrammingExercise
	err := r.db.WithContext(ctx).
		Preload("SubmissionPolicy").
		First(&exercise, id).Error
	if err != nil {
		return models.ProgrammingExercise{}, err
	}
	return exercise, nil
}

// StaticCodeAnalysisCategoryRepository reads static code analysis categories.
type StaticCodeAnalysisCategoryRepository interface {
	Categories(ctx context.Context, exerciseID uint) ([]models.StaticCodeAnalysisCategory, error)
}

// NewStaticCodeAnalysisCategoryRepository constructs a category repository.
func NewStaticCodeAnalysisCategoryRepository(db *gorm.DB) StaticCodeAnalysisCategoryRepository {
	return &staticCodeAnalysisCategoryRepository{db: db}
}

type staticCodeAnalysisCategoryRepository struct {
	db *gorm.DB
}

func (r *staticCodeAnalysisCategoryRepository) Categories(ctx context.Context, exerciseID uint) ([]models.StaticCodeAnalysisCategory, error) {
	var categories []models.StaticCodeAnalysisCategory
	if err := r.db.WithContext(ctx).
		Where("exercise_id = ?", exerciseID).
		Order("id ASC").
		Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}
