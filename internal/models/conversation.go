package models

import "time"

// ConversationKind distinguishes direct chats from standing cohort channels.
type ConversationKind string

const (
	KindDirect        ConversationKind = "direct"
	KindGroupDoctors  ConversationKind = "group_doctors"
	KindGroupPatients ConversationKind = "group_patients"
)

// IsCohort reports whether the kind names a cohort channel.
func (k ConversationKind) IsCohort() bool {
	return k == KindGroupDoctors || k == KindGroupPatients
}

// ChannelName is the fixed display name of a cohort channel.
func (k ConversationKind) ChannelName() string {
	switch k {
	case KindGroupDoctors:
		return "All Doctors"
	case KindGroupPatients:
		return "All Patients"
	default:
		return ""
	}
}

// Conversation is either a two-person direct chat or a cohort channel.
type Conversation struct {
	ID             string           `db:"id" json:"id"`
	Kind           ConversationKind `db:"kind" json:"kind"`
	Name           *string          `db:"name" json:"name,omitempty"`
	DirectKey      *string          `db:"direct_key" json:"-"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	LastActivityAt *time.Time       `db:"last_activity_at" json:"last_activity_at"`
}

// Participant is a membership row linking one user to one conversation.
type Participant struct {
	ConversationID string     `db:"conversation_id" json:"conversation_id"`
	UserID         string     `db:"user_id" json:"user_id"`
	JoinedAt       time.Time  `db:"joined_at" json:"joined_at"`
	LastReadAt     *time.Time `db:"last_read_at" json:"last_read_at,omitempty"`
}

// ParticipantView is a participant projected with the member's profile.
type ParticipantView struct {
	UserID     string     `json:"user_id"`
	JoinedAt   time.Time  `json:"joined_at"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
	Profile    *Profile   `json:"profile,omitempty"`
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	Conversation
	Participants []ParticipantView `json:"participants"`
	LastMessage  *Message          `json:"last_message,omitempty"`
	UnreadCount  int               `json:"unread_count"`
}
