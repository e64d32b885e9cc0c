package domain

import (
	"slices"
	"time"
)

// LastMessage is the denormalized snapshot of a conversation's latest message
type LastMessage struct {
	Content  string      `json:"content"`
	SenderID string      `json:"sender_id"`
	Type     MessageType `json:"type"`
	SentAt   time.Time   `json:"sent_at"`
}

// Conversation represents a direct or group thread (conversations collection)
type Conversation struct {
	Record
	Participants []string       `json:"participants"`
	IsGroup      bool           `json:"is_group"`
	GroupName    string         `json:"group_name,omitempty"`
	GroupAvatar  string         `json:"group_avatar,omitempty"`
	GroupAdmins  []string       `json:"group_admins,omitempty"`
	LastMessage  *LastMessage   `json:"last_message,omitempty"`
	UnreadCount  map[string]int `json:"unread_count"`
	DeletedFor   []string       `json:"deleted_for"`
	IsDeleted    bool           `json:"is_deleted"`
}

// HasParticipant reports whether userID takes part in the conversation
func (c *Conversation) HasParticipant(userID string) bool {
	return slices.Contains(c.Participants, userID)
}

// IsPair reports whether this is the direct conversation between a and b
func (c *Conversation) IsPair(a, b string) bool {
	if c.IsGroup || len(c.Participants) != 2 {
		return false
	}
	return (c.Participants[0] == a && c.Participants[1] == b) ||
		(c.Participants[0] == b && c.Participants[1] == a)
}

// VisibleTo reports whether the conversation shows up for userID
func (c *Conversation) VisibleTo(userID string) bool {
	return c.HasParticipant(userID) && VisibleTo(c.IsDeleted, c.DeletedFor, userID)
}

// UnreadFor returns the stored unread counter of a participant
func (c *Conversation) UnreadFor(userID string) int {
	return c.UnreadCount[userID]
}

// SetUnread sets a participant's unread counter, never below zero
func (c *Conversation) SetUnread(userID string, n int) {
	if c.UnreadCount == nil {
		c.UnreadCount = make(map[string]int, len(c.Participants))
	}
	if n < 0 {
		n = 0
	}
	c.UnreadCount[userID] = n
}

// AddUnread adjusts a participant's unread counter by delta, floored at zero
func (c *Conversation) AddUnread(userID string, delta int) {
	c.SetUnread(userID, c.UnreadFor(userID)+delta)
}

// DeleteFor hides the conversation for userID and reports whether every
// participant has now deleted it
func (c *Conversation) DeleteFor(userID string) bool {
	c.DeletedFor = addUnique(c.DeletedFor, userID)
	if DeletedByAll(c.Participants, c.DeletedFor) {
		c.IsDeleted = true
	}
	return c.IsDeleted
}

// ConversationSummary is a conversation as listed for one participant
type ConversationSummary struct {
	Conversation *Conversation `json:"conversation"`
	Others       []string      `json:"others"`
	Unread       int           `json:"unread"`
}

// CreateGroupRequest represents a create group conversation request
type CreateGroupRequest struct {
	CreatorID    string   `json:"creator_id" validate:"required"`
	Participants []string `json:"participants" validate:"required,min=2,dive,required"`
	Name         string   `json:"name" validate:"required,max=100"`
	Avatar       string   `json:"avatar" validate:"omitempty,max=500"`
}
