package domain

import (
	"slices"
	"time"
)

// MessageType kind of message payload
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageFile     MessageType = "file"
	MessageAudio    MessageType = "audio"
	MessageVideo    MessageType = "video"
	MessageLocation MessageType = "location"
	MessageSystem   MessageType = "system"
)

// DeliveryStatus of a message
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// Message represents a message inside a conversation (messages collection)
type Message struct {
	Record
	ConversationID string         `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	ReceiverID     string         `json:"receiver_id"`
	Recipients     []string       `json:"recipients"`
	Content        string         `json:"content"`
	Type           MessageType    `json:"type"`
	Status         DeliveryStatus `json:"status"`
	ReadBy         []string       `json:"read_by"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
	DeletedFor     []string       `json:"deleted_for"`
	IsDeleted      bool           `json:"is_deleted"`
}

// AddressedTo reports whether userID is a recipient of the message
func (m *Message) AddressedTo(userID string) bool {
	return m.ReceiverID == userID || slices.Contains(m.Recipients, userID)
}

// Parties returns the sender followed by every recipient
func (m *Message) Parties() []string {
	parties := []string{m.SenderID}
	for _, r := range m.Recipients {
		parties = addUnique(parties, r)
	}
	if m.ReceiverID != "" {
		parties = addUnique(parties, m.ReceiverID)
	}
	return parties
}

// VisibleTo reports whether the message shows up for userID
func (m *Message) VisibleTo(userID string) bool {
	return VisibleTo(m.IsDeleted, m.DeletedFor, userID)
}

// ReadByUser reports whether userID has read the message
func (m *Message) ReadByUser(userID string) bool {
	return m.Status == StatusRead || slices.Contains(m.ReadBy, userID)
}

// UnreadFor reports whether the message counts toward userID's unread counter
func (m *Message) UnreadFor(userID string) bool {
	return m.AddressedTo(userID) && m.VisibleTo(userID) && !m.ReadByUser(userID)
}

// MarkReadBy records that userID read the message. The status becomes read
// once every recipient has read it. Reports whether anything changed.
func (m *Message) MarkReadBy(userID string, at time.Time) bool {
	if !m.AddressedTo(userID) || m.ReadByUser(userID) {
		return false
	}
	m.ReadBy = addUnique(m.ReadBy, userID)
	if m.ReadAt == nil {
		m.ReadAt = &at
	}
	allRead := true
	for _, r := range m.Recipients {
		if !slices.Contains(m.ReadBy, r) {
			allRead = false
			break
		}
	}
	if allRead {
		m.Status = StatusRead
	}
	return true
}

// DeleteFor hides the message for userID and reports whether every party
// has now deleted it
func (m *Message) DeleteFor(userID string) bool {
	m.DeletedFor = addUnique(m.DeletedFor, userID)
	if DeletedByAll(m.Parties(), m.DeletedFor) {
		m.IsDeleted = true
	}
	return m.IsDeleted
}

// SendMessageRequest represents a direct message request
type SendMessageRequest struct {
	SenderID   string      `json:"sender_id" validate:"required"`
	ReceiverID string      `json:"receiver_id" validate:"required"`
	Content    string      `json:"content" validate:"max=10000"`
	Type       MessageType `json:"type" validate:"omitempty,oneof=text image file audio video location system"`
}

// ConversationMessageRequest represents a message sent into an existing conversation
type ConversationMessageRequest struct {
	ConversationID string      `json:"conversation_id" validate:"required"`
	SenderID       string      `json:"sender_id" validate:"required"`
	Content        string      `json:"content" validate:"max=10000"`
	Type           MessageType `json:"type" validate:"omitempty,oneof=text image file audio video location system"`
}
