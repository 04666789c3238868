package types

import (
	"time"
)

// User roles as stored in the users table. Accounts are managed by an
// external service; tutorboard only references them by id.
const (
	UserTypeStudent = "student"
	UserTypeTutor   = "tutor"
)

// Read-state lifecycle for a message recipient. Transitions are strictly
// forward: sent -> delivered -> seen.
const (
	ReadStatusSent      = "sent"
	ReadStatusDelivered = "delivered"
	ReadStatusSeen      = "seen"
)

// User is the slice of an account that chat and pricing need.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	UserType string `json:"user_type"`
}

// Conversation is a two-party chat thread. Exactly two participants exist
// per conversation; the pair is unique across the table.
type Conversation struct {
	ID           string        `json:"id"`
	CreatedAt    time.Time     `json:"created_at"`
	Participants []Participant `json:"participants"`
}

// Participant attaches a user to a conversation. LastReadMessageID always
// points into this conversation's messages, or is nil before the first read.
type Participant struct {
	ConversationID    string    `json:"conversation_id"`
	UserID            string    `json:"id"`
	Username          string    `json:"username"`
	JoinedAt          time.Time `json:"joined_at"`
	LastReadMessageID *string   `json:"last_read_message_id,omitempty"`
}

// Message is immutable once created. Delivery progress lives in the
// per-recipient ReadState rows, never on the message itself.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	IsSystem       bool      `json:"is_system"`
	Attachment     *string   `json:"attachment"`
}

// ReadState tracks delivery for one (message, recipient) pair. One row is
// created per non-sender participant when the message is persisted.
type ReadState struct {
	MessageID string     `json:"message_id"`
	UserID    string     `json:"user_id"`
	Status    string     `json:"status"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// ContactUnlock is a directional, immutable permission grant. Messaging is
// allowed once a grant exists in either direction.
type ContactUnlock struct {
	UnlockerID string    `json:"unlocker_id"`
	TargetID   string    `json:"target_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Job is a read-only snapshot of a tutoring job listing used by the pricing
// engine. Budget and TotalHours are optional; pricing falls back to the
// country group when either is missing.
type Job struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	Budget     *float64  `json:"budget"`
	BudgetType string    `json:"budget_type"`
	TotalHours *float64  `json:"total_hours"`
	Country    string    `json:"country"`
	CreatedAt  time.Time `json:"created_at"`
}

// Budget types recognized by hourly-rate normalization. Anything other than
// "Per Hour" is divided by the job's total hours.
const (
	BudgetTypeFixed    = "Fixed"
	BudgetTypePerHour  = "Per Hour"
	BudgetTypePerWeek  = "Per Week"
	BudgetTypePerMonth = "Per Month"
	BudgetTypePerYear  = "Per Year"
)

// JobUnlock records a tutor paying to unlock a job listing. Unique per
// (job, tutor) and immutable; its existence means "already paid".
type JobUnlock struct {
	JobID       string    `json:"job_id"`
	TutorID     string    `json:"tutor_id"`
	PointsSpent int       `json:"points_spent"`
	UnlockedAt  time.Time `json:"unlocked_at"`
}

// PricingTier maps an hourly-rate range to a point cost. MaxRate nil means
// the tier is unbounded above. Tiers are ordered by MinRate and rates
// outside the table clamp to the first or last tier.
type PricingTier struct {
	MinRate float64  `json:"min_rate"`
	MaxRate *float64 `json:"max_rate"`
	Points  int      `json:"points"`
}

// CountryGroup assigns a country to a pricing group (G1..G5).
type CountryGroup struct {
	Name  string `json:"name"`
	Group string `json:"group"`
}

// CountryGroupPoint is the base point cost for jobs priced by country group.
type CountryGroupPoint struct {
	Group  string `json:"group"`
	Points int    `json:"points"`
}

// WireUser is the participant shape sent over the socket.
type WireUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// WireMessage is the serialized message shape sent over the socket.
// IsRead and Status are computed relative to the requesting user: a sender
// sees the recipient's read-state, a recipient sees their own.
type WireMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         WireUser  `json:"sender"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	IsSystem       bool      `json:"is_system"`
	Attachment     *string   `json:"attachment"`
	IsRead         bool      `json:"is_read"`
	Status         *string   `json:"status"`
}

// LastMessage is the preview of a conversation's newest message.
type LastMessage struct {
	Content        string     `json:"content"`
	Timestamp      *time.Time `json:"timestamp"`
	SenderID       *string    `json:"sender_id"`
	SenderUsername *string    `json:"sender_username"`
}

// ConversationSummary is one row of a user's conversation list. HasUnread is
// true iff the latest message was sent by someone else and is newer than the
// viewer's last-read pointer.
type ConversationSummary struct {
	ID           string       `json:"id"`
	Participants []WireUser   `json:"participants"`
	HasUnread    bool         `json:"has_unread"`
	LastMessage  *LastMessage `json:"last_message"`
}
