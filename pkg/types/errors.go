package types

import "errors"

// Validation errors shared across components.
var (
	ErrInvalidUserID   = errors.New("user ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidUserType = errors.New("user type must be 'student' or 'tutor'")
	ErrInvalidUsername = errors.New("username must be 1-100 characters")
	ErrEmptyMessage    = errors.New("message requires content or an attachment")
	ErrContentTooLarge = errors.New("message content exceeds 64KB limit")
)
