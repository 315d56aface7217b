package models

import "time"

// Notification is a message for a user or a staff channel of an exercise.
type Notification struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Recipient  string    `gorm:"size:128;index" json:"recipient"`
	ExerciseID *uint     `gorm:"index" json:"exercise_id"`
	Type       string    `gorm:"size:64" json:"type"`
	Message    string    `gorm:"type:text" json:"message"`
	Read       bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
