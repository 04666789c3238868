package store

import "errors"

// Storage error taxonomy. Handlers map these onto protocol events or HTTP
// statuses; anything else is an internal failure.
var (
	ErrNotFound            = errors.New("record not found")
	ErrNotParticipant      = errors.New("user is not a participant of the conversation")
	ErrSelfConversation    = errors.New("cannot start a conversation with yourself")
	ErrSelfUnlock          = errors.New("cannot unlock yourself")
	ErrAlreadyUnlocked     = errors.New("job already unlocked")
	ErrInsufficientCredits = errors.New("insufficient points")
	ErrConflict            = errors.New("storage conflict, transaction retried and failed")
)
