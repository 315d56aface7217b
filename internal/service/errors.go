package service

import "errors"

var (
	// ErrParticipationNotFound indicates the participation of a build result does not exist.
	ErrParticipationNotFound = errors.New("participation not found")
	// ErrExerciseNotFound indicates the exercise does not exist.
	ErrExerciseNotFound = errors.New("exercise not found")
	// ErrInvalidTestCaseUpdate indicates a registry configuration request referenced an unknown test case.
	ErrInvalidTestCaseUpdate = errors.New("invalid test case update")
	// ErrResultNotFound indicates a participation has no result yet.
	ErrResultNotFound = errors.New("result not found")
	// ErrNotificationNotFound indicates the notification does not exist for the recipient.
	ErrNotificationNotFound = errors.New("notification not found")
)
