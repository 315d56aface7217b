package dto

import (
	"time"

	"github.com/noah-isme/gema-grader/internal/models"
)

// NotificationCreateRequest describes the payload to create a notification.
type NotificationCreateRequest struct {
	Recipient  string `json:"recipient" validate:"required,max=128"`
	ExerciseID *uint  `json:"exercise_id,omitempty"`
	Type       string `json:"type" validate:"required,max=64"`
	Message    string `json:"message" validate:"required,min=1,max=2000"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID         uint      `json:"id"`
	Recipient  string    `json:"recipient"`
	ExerciseID *uint     `json:"exercise_id,omitempty"`
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:         model.ID,
		Recipient:  model.Recipient,
		ExerciseID: model.ExerciseID,
		Type:       model.Type,
		Message:    model.Message,
		Read:       model.Read,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}
