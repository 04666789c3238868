package types

import "regexp"

var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// maxContentBytes caps chat message content at 64KB.
const maxContentBytes = 65536

// IsValidUserID checks if a user ID meets format requirements.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidUserType reports whether t is one of the two supported roles.
func IsValidUserType(t string) bool {
	return t == UserTypeStudent || t == UserTypeTutor
}

// Validate ensures a user row is storable.
func (u *User) Validate() error {
	if !IsValidUserID(u.ID) {
		return ErrInvalidUserID
	}
	if len(u.Username) < 1 || len(u.Username) > 100 {
		return ErrInvalidUsername
	}
	if !IsValidUserType(u.UserType) {
		return ErrInvalidUserType
	}
	return nil
}

// Validate ensures the message meets all requirements. Content may be empty
// only when an attachment is present.
func (m *Message) Validate() error {
	if m.Content == "" && m.Attachment == nil && !m.IsSystem {
		return ErrEmptyMessage
	}
	if len(m.Content) > maxContentBytes {
		return ErrContentTooLarge
	}
	return nil
}

// NewerThan orders messages by timestamp ascending with ties broken by id,
// matching the storage ordering of a conversation.
func (m *Message) NewerThan(other *Message) bool {
	if m.Timestamp.Equal(other.Timestamp) {
		return m.ID > other.ID
	}
	return m.Timestamp.After(other.Timestamp)
}

// Contains reports whether rate falls inside the tier's range.
func (t *PricingTier) Contains(rate float64) bool {
	if rate < t.MinRate {
		return false
	}
	return t.MaxRate == nil || rate <= *t.MaxRate
}
