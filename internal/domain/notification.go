package domain

import "time"

// NotificationType kind of notification
type NotificationType string

const (
	NotifyComment NotificationType = "comment"
	NotifyReply   NotificationType = "reply"
	NotifyLike    NotificationType = "like"
	NotifyMessage NotificationType = "message"
	NotifySystem  NotificationType = "system"
)

// Notification represents a user notification (notifications collection)
type Notification struct {
	Record
	UserID  string           `json:"user_id"`
	Type    NotificationType `json:"type"`
	Title   string           `json:"title"`
	Content string           `json:"content,omitempty"`
	Link    string           `json:"link,omitempty"`
	ActorID string           `json:"actor_id,omitempty"`
	IsRead  bool             `json:"is_read"`
	ReadAt  *time.Time       `json:"read_at,omitempty"`
}
