package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-grader/internal/models"
)

// TestCaseRepository persists the test case registry keyed by exercise and
// lowercase test name.
type TestCaseRepository interface {
	ListByExercise(ctx context.Context, exerciseID uint) ([]models.TestCase, error)
	ListActive(ctx context.Context, exerciseID uint) ([]models.TestCase, error)
	// Upsert inserts new test cases unless a row with the same key already
	// exists and updates known ones (non-zero ID). It returns the affected rows.
	Upsert(ctx context.Context, testCases []models.TestCase) (int64, error)
}

// NewTestCaseRepository constructs a test case repository.
func NewTestCaseRepository(db *gorm.DB) TestCaseRepository {
	return &testCaseRepository{db: db}
}

type testCaseRepository struct {
	db *gorm.DB
}

func (r *testCaseRepository) ListByExercise(ctx context.Context, exerciseID uint) ([]models.TestCase, error) {
	var testCases []models.TestCase
	if err := r.db.WithContext(ctx).
		Where("exercise_id = ?", exerciseID).
		Order("id ASC").
		Find(&testCases).Error; err != nil {
		return nil, err
	}
	return testCases, nil
}

func (r *testCaseRepository) ListActive(ctx context.Context, exerciseID uint) ([]models.TestCase, error) {
	var testCases []models.TestCase
	if err := r.db.WithContext(ctx).
		Where("exercise_id = ? AND active = ?", exerciseID, true).
		Order("id ASC").
		Find(&testCases).Error; err != nil {
		return nil, err
	}
	return testCases, nil
}

func (r *testCaseRepository) Upsert(ctx context.Context, testCases []models.TestCase) (int64, error) {
	if len(testCases) == 0 {
		return 0, nil
	}

	var created, updated []models.TestCase
	for _, testCase := range testCases {
		testCase.NameKey = models.TestNameKey(testCase.TestName)
		if testCase.ID == 0 {
			created = append(created, testCase)
		} else {
			updated = append(updated, testCase)
		}
	}

	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(created) > 0 {
			// A concurrent build may have registered the same name first.
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "exercise_id"}, {Name: "name_key"}},
				DoNothing: true,
			}).Create(&created)
			if result.Error != nil {
				return result.Error
			}
			affected += result.RowsAffected
		}

		for i := range updated {
			result := tx.Model(&models.TestCase{}).
				Where("id = ? AND exercise_id = ?", updated[i].ID, updated[i].ExerciseID).
				Updates(map[string]interface{}{
					"weight":           updated[i].Weight,
					"bonus_multiplier": updated[i].BonusMultiplier,
					"bonus_points":     updated[i].BonusPoints,
					"visibility":       updated[i].Visibility,
					"active":           updated[i].Active,
					"type":             updated[i].Type,
				})
			if result.Error != nil {
				return result.Error
			}
			affected += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}
