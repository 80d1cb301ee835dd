package service

import (
	"errors"
	"fmt"
)

// Errors returned by the points, ranking and admin services.
var (
	ErrConfigNotFound      = errors.New("point config not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount: must be positive")
	ErrMissingUserID       = errors.New("user id is required")
	ErrInvalidTimeRange    = errors.New("invalid time range")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrDuplicateScenario   = errors.New("scenario type already configured")
	ErrDuplicateBadge      = errors.New("badge name already exists")
	ErrBadgeNotFound       = errors.New("badge not found")
)

// InsufficientBalanceError carries the amounts behind a rejected mutation.
// It matches ErrInsufficientBalance with errors.Is.
type InsufficientBalanceError struct {
	UserID    string
	Available int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for user %s: available %d, requested %d", e.UserID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
