package database

import (
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
)

// Migrate creates or updates the grading schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ProgrammingExercise{},
		&models.SubmissionPolicy{},
		&models.StaticCodeAnalysisCategory{},
		&models.TestCase{},
		&models.Participation{},
		&models.Submission{},
		&models.Result{},
		&models.Feedback{},
		&models.Notification{},
	)
}
