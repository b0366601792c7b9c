package util

import "errors"

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrEmailRegistered   = errors.New("email already registered")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrLessonNotFound    = errors.New("lesson not found")
	ErrInvalidTaskNumber = errors.New("task number must be between 1 and 5")
	ErrInvalidPercent    = errors.New("percent complete must be between 0 and 100")
	ErrNegativeTimeSpent = errors.New("time spent must not be negative")
	ErrEmptyBatch        = errors.New("batch contains no updates")
)
