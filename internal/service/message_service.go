package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/damoang/angple-store/internal/common"
	"github.com/damoang/angple-store/internal/domain"
	"github.com/damoang/angple-store/internal/repository"
	"github.com/damoang/angple-store/internal/storage"
	"github.com/rs/zerolog"
)

// MessagingService conversation and message business logic
type MessagingService interface {
	FindOrCreateConversation(ctx context.Context, userA, userB string) (*domain.Conversation, error)
	CreateGroupConversation(ctx context.Context, req *domain.CreateGroupRequest) (*domain.Conversation, error)
	GetConversation(ctx context.Context, id, userID string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*domain.ConversationSummary, error)
	SendMessage(ctx context.Context, req *domain.SendMessageRequest) (*domain.Message, error)
	SendToConversation(ctx context.Context, req *domain.ConversationMessageRequest) (*domain.Message, error)
	GetMessages(ctx context.Context, conversationID, userID string, page, pageSize int) ([]*domain.Message, *common.PageMeta, error)
	MarkAsDelivered(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, conversationID, userID string) (int, error)
	UnreadTotal(ctx context.Context, userID string) (int, error)
	DeleteMessage(ctx context.Context, messageID, userID string) error
	DeleteConversation(ctx context.Context, conversationID, userID string) error
}

type messagingService struct {
	store         *storage.Store
	users         *repository.Repository[*domain.Account]
	conversations *repository.Repository[*domain.Conversation]
	messages      *repository.Repository[*domain.Message]
	notifier      Notifier
	log           zerolog.Logger
}

var messagingCollections = []string{domain.CollectionConversations, domain.CollectionMessages}

// NewMessagingService creates a new MessagingService. notifier may be nil.
func NewMessagingService(store *storage.Store, notifier Notifier, log zerolog.Logger) MessagingService {
	return &messagingService{
		store:         store,
		users:         repository.New[*domain.Account](store, domain.CollectionUsers),
		conversations: repository.New[*domain.Conversation](store, domain.CollectionConversations),
		messages:      repository.New[*domain.Message](store, domain.CollectionMessages),
		notifier:      notifier,
		log:           log.With().Str("component", "messaging").Logger(),
	}
}

func checkPair(a, b string) error {
	if a == "" {
		return common.NewValidationError("sender_id", "is required")
	}
	if b == "" {
		return common.NewValidationError("receiver_id", "is required")
	}
	if a == b {
		return common.NewValidationError("receiver_id", "must differ from sender")
	}
	return nil
}

// FindOrCreateConversation returns the direct conversation between two
// accounts, creating it if none exists. The conversations lock makes the
// lookup and the creation one step, so a pair never gets two conversations.
func (s *messagingService) FindOrCreateConversation(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	if err := checkPair(userA, userB); err != nil {
		return nil, err
	}
	var conv *domain.Conversation
	err := s.store.Update(ctx, []string{domain.CollectionConversations}, func(tx *storage.Tx) error {
		var err error
		conv, err = s.pairConversation(ctx, s.conversations.WithTx(tx), userA, userB)
		return err
	})
	return conv, err
}

// pairConversation finds or creates the direct conversation of a and b. A
// live conversation wins over deleted ones; only when every match is deleted
// is the first brought back instead of duplicated.
func (s *messagingService) pairConversation(ctx context.Context, convs *repository.Repository[*domain.Conversation], a, b string) (*domain.Conversation, error) {
	found, err := convs.FindFunc(ctx, func(c *domain.Conversation) bool { return c.IsPair(a, b) })
	if err != nil {
		return nil, err
	}
	for _, conv := range found {
		if !conv.IsDeleted {
			return conv, nil
		}
	}
	if len(found) > 0 {
		conv := found[0]
		return convs.Modify(ctx, conv.ID, func(c *domain.Conversation) error {
			c.IsDeleted = false
			c.DeletedFor = []string{}
			c.UnreadCount = map[string]int{a: 0, b: 0}
			return nil
		})
	}

	conv, err := convs.Insert(ctx, &domain.Conversation{
		Participants: []string{a, b},
		UnreadCount:  map[string]int{a: 0, b: 0},
		DeletedFor:   []string{},
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug().Str("conversation_id", conv.ID).Msg("conversation created")
	return conv, nil
}

// CreateGroupConversation creates a group conversation administered by its creator
func (s *messagingService) CreateGroupConversation(ctx context.Context, req *domain.CreateGroupRequest) (*domain.Conversation, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := common.Validate(req); err != nil {
		return nil, err
	}

	participants := []string{req.CreatorID}
	for _, p := range req.Participants {
		if !slices.Contains(participants, p) {
			participants = append(participants, p)
		}
	}
	if len(participants) < 3 {
		return nil, common.NewValidationError("participants", "a group needs at least 3 members")
	}
	for _, p := range participants {
		if _, err := s.users.FindByID(ctx, p); err != nil {
			return nil, err
		}
	}

	unread := make(map[string]int, len(participants))
	for _, p := range participants {
		unread[p] = 0
	}
	conv, err := s.conversations.Insert(ctx, &domain.Conversation{
		Participants: participants,
		IsGroup:      true,
		GroupName:    req.Name,
		GroupAvatar:  req.Avatar,
		GroupAdmins:  []string{req.CreatorID},
		UnreadCount:  unread,
		DeletedFor:   []string{},
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("conversation_id", conv.ID).Int("members", len(participants)).Msg("group conversation created")
	return conv, nil
}

// accessible loads a conversation the user takes part in and has not deleted
func accessible(ctx context.Context, convs *repository.Repository[*domain.Conversation], id, userID string) (*domain.Conversation, error) {
	conv, err := convs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, common.NewPermissionError("access", "conversation")
	}
	if !conv.VisibleTo(userID) {
		return nil, common.ErrConversationNotFound
	}
	return conv, nil
}

// GetConversation returns a conversation visible to the user
func (s *messagingService) GetConversation(ctx context.Context, id, userID string) (*domain.Conversation, error) {
	return accessible(ctx, s.conversations, id, userID)
}

func lastActivity(c *domain.Conversation) time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.SentAt
	}
	return c.CreatedAt
}

// ListConversations returns the user's visible conversations, most recent
// activity first
func (s *messagingService) ListConversations(ctx context.Context, userID string) ([]*domain.ConversationSummary, error) {
	convs, err := s.conversations.FindFunc(ctx, func(c *domain.Conversation) bool { return c.VisibleTo(userID) })
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(convs, func(a, b *domain.Conversation) int {
		return lastActivity(b).Compare(lastActivity(a))
	})

	out := make([]*domain.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		others := make([]string, 0, len(c.Participants)-1)
		for _, p := range c.Participants {
			if p != userID {
				others = append(others, p)
			}
		}
		out = append(out, &domain.ConversationSummary{
			Conversation: c,
			Others:       others,
			Unread:       c.UnreadFor(userID),
		})
	}
	return out, nil
}

func normalizeMessage(content *string, typ *domain.MessageType) error {
	*content = strings.TrimSpace(*content)
	if *typ == "" {
		*typ = domain.MessageText
	}
	if *content == "" && *typ == domain.MessageText {
		return common.NewValidationError("content", "is required")
	}
	return nil
}

// SendMessage sends a direct message, creating the conversation if needed
func (s *messagingService) SendMessage(ctx context.Context, req *domain.SendMessageRequest) (*domain.Message, error) {
	if err := checkPair(req.SenderID, req.ReceiverID); err != nil {
		return nil, err
	}
	if err := normalizeMessage(&req.Content, &req.Type); err != nil {
		return nil, err
	}
	if err := common.Validate(req); err != nil {
		return nil, err
	}
	if _, err := s.users.FindByID(ctx, req.ReceiverID); err != nil {
		return nil, err
	}

	var (
		msg  *domain.Message
		conv *domain.Conversation
	)
	err := s.store.Update(ctx, messagingCollections, func(tx *storage.Tx) error {
		var err error
		conv, err = s.pairConversation(ctx, s.conversations.WithTx(tx), req.SenderID, req.ReceiverID)
		if err != nil {
			return err
		}
		msg, conv, err = s.appendMessage(ctx, tx, conv, req.SenderID, req.Content, req.Type)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifyRecipients(ctx, conv, msg)
	return msg, nil
}

// SendToConversation sends a message into an existing direct or group conversation
func (s *messagingService) SendToConversation(ctx context.Context, req *domain.ConversationMessageRequest) (*domain.Message, error) {
	if err := normalizeMessage(&req.Content, &req.Type); err != nil {
		return nil, err
	}
	if err := common.Validate(req); err != nil {
		return nil, err
	}

	var (
		msg  *domain.Message
		conv *domain.Conversation
	)
	err := s.store.Update(ctx, messagingCollections, func(tx *storage.Tx) error {
		var err error
		conv, err = s.conversations.WithTx(tx).FindByID(ctx, req.ConversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(req.SenderID) {
			return common.NewPermissionError("send to", "conversation")
		}
		if conv.IsDeleted {
			return common.ErrConversationNotFound
		}
		msg, conv, err = s.appendMessage(ctx, tx, conv, req.SenderID, req.Content, req.Type)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifyRecipients(ctx, conv, msg)
	return msg, nil
}

// appendMessage inserts a message and updates the conversation's snapshot and
// unread counters. It must run inside a transaction over both collections.
func (s *messagingService) appendMessage(ctx context.Context, tx *storage.Tx, conv *domain.Conversation, senderID, content string, typ domain.MessageType) (*domain.Message, *domain.Conversation, error) {
	recipients := make([]string, 0, len(conv.Participants)-1)
	for _, p := range conv.Participants {
		if p != senderID {
			recipients = append(recipients, p)
		}
	}
	receiver := ""
	if !conv.IsGroup && len(recipients) == 1 {
		receiver = recipients[0]
	}

	msg, err := s.messages.WithTx(tx).Insert(ctx, &domain.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     receiver,
		Recipients:     recipients,
		Content:        content,
		Type:           typ,
		Status:         domain.StatusSent,
		ReadBy:         []string{},
		DeletedFor:     []string{},
	})
	if err != nil {
		return nil, nil, err
	}

	conv, err = s.conversations.WithTx(tx).Modify(ctx, conv.ID, func(c *domain.Conversation) error {
		c.LastMessage = &domain.LastMessage{
			Content:  content,
			SenderID: senderID,
			Type:     typ,
			SentAt:   msg.CreatedAt,
		}
		for _, r := range recipients {
			c.AddUnread(r, 1)
		}
		c.DeletedFor = []string{}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return msg, conv, nil
}

func (s *messagingService) notifyRecipients(ctx context.Context, conv *domain.Conversation, msg *domain.Message) {
	if s.notifier == nil {
		return
	}
	for _, r := range msg.Recipients {
		_, err := s.notifier.Notify(ctx, &domain.Notification{
			UserID:  r,
			Type:    domain.NotifyMessage,
			Title:   "New message",
			Content: msg.Content,
			Link:    "/messages/" + conv.ID,
			ActorID: msg.SenderID,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", r).Msg("message notification failed")
		}
	}
}

// GetMessages returns the messages of a conversation visible to the user,
// newest first
func (s *messagingService) GetMessages(ctx context.Context, conversationID, userID string, page, pageSize int) ([]*domain.Message, *common.PageMeta, error) {
	if _, err := accessible(ctx, s.conversations, conversationID, userID); err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.FindMany(ctx, repository.Filter{"conversation_id": conversationID, "is_deleted": false})
	if err != nil {
		return nil, nil, err
	}
	visible := slices.DeleteFunc(msgs, func(m *domain.Message) bool { return !m.VisibleTo(userID) })
	slices.Reverse(visible)
	window, meta := common.Paginate(visible, page, pageSize)
	return window, meta, nil
}

// MarkAsDelivered moves every sent message addressed to the user to delivered
func (s *messagingService) MarkAsDelivered(ctx context.Context, userID string) (int, error) {
	return s.messages.UpdateMany(ctx, repository.Filter{"status": domain.StatusSent}, func(m *domain.Message) (bool, error) {
		if !m.AddressedTo(userID) || m.IsDeleted {
			return false, nil
		}
		m.Status = domain.StatusDelivered
		return true, nil
	})
}

// MarkAsRead marks every message of the conversation addressed to the user
// and not yet read by them as read, and zeroes the user's unread counter
func (s *messagingService) MarkAsRead(ctx context.Context, conversationID, userID string) (int, error) {
	marked := 0
	err := s.store.Update(ctx, messagingCollections, func(tx *storage.Tx) error {
		convs := s.conversations.WithTx(tx)
		conv, err := convs.FindByID(ctx, conversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(userID) {
			return common.NewPermissionError("read", "conversation")
		}

		now := repository.Now()
		marked, err = s.messages.WithTx(tx).UpdateMany(ctx, repository.Filter{"conversation_id": conversationID},
			func(m *domain.Message) (bool, error) {
				return m.MarkReadBy(userID, now), nil
			})
		if err != nil {
			return err
		}

		if marked == 0 && conv.UnreadFor(userID) == 0 {
			return nil
		}
		_, err = convs.Modify(ctx, conversationID, func(c *domain.Conversation) error {
			c.SetUnread(userID, 0)
			return nil
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// UnreadTotal sums the user's unread counters over their visible conversations
func (s *messagingService) UnreadTotal(ctx context.Context, userID string) (int, error) {
	convs, err := s.conversations.FindFunc(ctx, func(c *domain.Conversation) bool { return c.VisibleTo(userID) })
	if err != nil {
		return 0, err
	}
	total := 0
	for _, c := range convs {
		total += c.UnreadFor(userID)
	}
	return total, nil
}

// DeleteMessage hides a message for the user. It becomes globally deleted
// once every party has deleted it.
func (s *messagingService) DeleteMessage(ctx context.Context, messageID, userID string) error {
	return s.store.Update(ctx, messagingCollections, func(tx *storage.Tx) error {
		msgs := s.messages.WithTx(tx)
		msg, err := msgs.FindByID(ctx, messageID)
		if err != nil {
			return err
		}
		if !slices.Contains(msg.Parties(), userID) {
			return common.NewPermissionError("delete", "message")
		}
		if !msg.VisibleTo(userID) {
			return common.ErrMessageNotFound
		}
		counted := msg.UnreadFor(userID)

		msg, err = msgs.Modify(ctx, messageID, func(m *domain.Message) error {
			m.DeleteFor(userID)
			return nil
		})
		if err != nil {
			return err
		}

		if counted {
			if _, err := s.conversations.WithTx(tx).Modify(ctx, msg.ConversationID, func(c *domain.Conversation) error {
				c.AddUnread(userID, -1)
				return nil
			}); err != nil {
				return err
			}
		}
		s.log.Debug().Str("message_id", messageID).Bool("global", msg.IsDeleted).Msg("message deleted")
		return nil
	})
}

// DeleteConversation hides a conversation and all of its messages for the
// user. It becomes globally deleted once every participant has deleted it.
func (s *messagingService) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	return s.store.Update(ctx, messagingCollections, func(tx *storage.Tx) error {
		convs := s.conversations.WithTx(tx)
		if _, err := accessible(ctx, convs, conversationID, userID); err != nil {
			return err
		}

		_, err := s.messages.WithTx(tx).UpdateMany(ctx, repository.Filter{"conversation_id": conversationID},
			func(m *domain.Message) (bool, error) {
				if !m.VisibleTo(userID) {
					return false, nil
				}
				m.DeleteFor(userID)
				return true, nil
			})
		if err != nil {
			return err
		}

		conv, err := convs.Modify(ctx, conversationID, func(c *domain.Conversation) error {
			c.DeleteFor(userID)
			c.SetUnread(userID, 0)
			return nil
		})
		if err != nil {
			return err
		}
		s.log.Debug().Str("conversation_id", conversationID).Bool("global", conv.IsDeleted).Msg("conversation deleted")
		return nil
	})
}
