package service

import (
	"context"
	"slices"
	"strings"

	"github.com/damoang/angple-store/internal/common"
	"github.com/damoang/angple-store/internal/domain"
	"github.com/damoang/angple-store/internal/repository"
	"github.com/damoang/angple-store/internal/storage"
	"github.com/rs/zerolog"
)

// Notifier records a notification for a user
type Notifier interface {
	Notify(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
}

// NotificationService notification business logic
type NotificationService interface {
	Notifier
	List(ctx context.Context, userID string, unreadOnly bool, page, pageSize int) ([]*domain.Notification, *common.PageMeta, error)
	MarkRead(ctx context.Context, id, userID string) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

type notificationService struct {
	notifications *repository.Repository[*domain.Notification]
	log           zerolog.Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(store *storage.Store, log zerolog.Logger) NotificationService {
	return &notificationService{
		notifications: repository.New[*domain.Notification](store, domain.CollectionNotifications),
		log:           log.With().Str("component", "notification").Logger(),
	}
}

// Notify stores a new unread notification
func (s *notificationService) Notify(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	if strings.TrimSpace(n.UserID) == "" {
		return nil, common.NewValidationError("user_id", "is required")
	}
	if n.Type == "" {
		n.Type = domain.NotifySystem
	}
	n.IsRead = false
	n.ReadAt = nil
	return s.notifications.Insert(ctx, n)
}

// List returns a user's notifications, newest first
func (s *notificationService) List(ctx context.Context, userID string, unreadOnly bool, page, pageSize int) ([]*domain.Notification, *common.PageMeta, error) {
	filter := repository.Filter{"user_id": userID}
	if unreadOnly {
		filter["is_read"] = false
	}
	items, err := s.notifications.FindMany(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	slices.SortStableFunc(items, func(a, b *domain.Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	window, meta := common.Paginate(items, page, pageSize)
	return window, meta, nil
}

// MarkRead marks one of the user's notifications as read
func (s *notificationService) MarkRead(ctx context.Context, id, userID string) (*domain.Notification, error) {
	n, err := s.notifications.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, common.NewPermissionError("read", "notification")
	}
	if n.IsRead {
		return n, nil
	}
	return s.notifications.Modify(ctx, id, func(n *domain.Notification) error {
		now := repository.Now()
		n.IsRead = true
		n.ReadAt = &now
		return nil
	})
}

// MarkAllRead marks every unread notification of the user as read
func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	now := repository.Now()
	return s.notifications.UpdateMany(ctx, repository.Filter{"user_id": userID, "is_read": false},
		func(n *domain.Notification) (bool, error) {
			n.IsRead = true
			n.ReadAt = &now
			return true, nil
		})
}

// UnreadCount returns the number of unread notifications of the user
func (s *notificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.notifications.Count(ctx, repository.Filter{"user_id": userID, "is_read": false})
}
