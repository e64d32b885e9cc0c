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

// PurgeResult counts records removed by PurgeDeleted
type PurgeResult struct {
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
}

// ReconcileService recomputes denormalized counters from live records
type ReconcileService interface {
	Check(ctx context.Context) ([]common.InvariantViolation, error)
	Reconcile(ctx context.Context) ([]common.InvariantViolation, error)
	PurgeDeleted(ctx context.Context) (*PurgeResult, error)
}

type reconcileService struct {
	store         *storage.Store
	posts         *repository.Repository[*domain.Post]
	comments      *repository.Repository[*domain.Comment]
	conversations *repository.Repository[*domain.Conversation]
	messages      *repository.Repository[*domain.Message]
	log           zerolog.Logger
}

var reconcileCollections = []string{
	domain.CollectionComments,
	domain.CollectionConversations,
	domain.CollectionMessages,
	domain.CollectionPosts,
}

// NewReconcileService creates a new ReconcileService
func NewReconcileService(store *storage.Store, log zerolog.Logger) ReconcileService {
	return &reconcileService{
		store:         store,
		posts:         repository.New[*domain.Post](store, domain.CollectionPosts),
		comments:      repository.New[*domain.Comment](store, domain.CollectionComments),
		conversations: repository.New[*domain.Conversation](store, domain.CollectionConversations),
		messages:      repository.New[*domain.Message](store, domain.CollectionMessages),
		log:           log.With().Str("component", "reconcile").Logger(),
	}
}

// counters holds the values every denormalized counter should have
type counters struct {
	comments map[string]int            // post id -> live comments
	replies  map[string]int            // comment id -> live replies
	unread   map[string]map[string]int // conversation id -> participant -> unread
}

func countLive(comments []*domain.Comment, msgs []*domain.Message, convs []*domain.Conversation) counters {
	c := counters{
		comments: make(map[string]int),
		replies:  make(map[string]int),
		unread:   make(map[string]map[string]int, len(convs)),
	}
	for _, cm := range comments {
		if cm.IsDeleted {
			continue
		}
		c.comments[cm.PostID]++
		if cm.IsReply() {
			c.replies[cm.ParentID]++
		}
	}

	byID := make(map[string]*domain.Conversation, len(convs))
	for _, conv := range convs {
		byID[conv.ID] = conv
		c.unread[conv.ID] = make(map[string]int, len(conv.Participants))
	}
	for _, m := range msgs {
		conv, ok := byID[m.ConversationID]
		if !ok {
			continue
		}
		for _, p := range conv.Participants {
			if m.UnreadFor(p) {
				c.unread[conv.ID][p]++
			}
		}
	}
	return c
}

func violations(posts []*domain.Post, comments []*domain.Comment, convs []*domain.Conversation, want counters) []common.InvariantViolation {
	var out []common.InvariantViolation
	for _, p := range posts {
		if actual := want.comments[p.ID]; p.CommentCount != actual {
			out = append(out, common.InvariantViolation{
				Collection: domain.CollectionPosts, ID: p.ID, Field: "comment_count",
				Stored: p.CommentCount, Actual: actual,
			})
		}
	}
	for _, cm := range comments {
		if actual := want.replies[cm.ID]; cm.ReplyCount != actual {
			out = append(out, common.InvariantViolation{
				Collection: domain.CollectionComments, ID: cm.ID, Field: "reply_count",
				Stored: cm.ReplyCount, Actual: actual,
			})
		}
	}
	for _, conv := range convs {
		for _, p := range conv.Participants {
			if actual := want.unread[conv.ID][p]; conv.UnreadFor(p) != actual {
				out = append(out, common.InvariantViolation{
					Collection: domain.CollectionConversations, ID: conv.ID, Field: "unread_count." + p,
					Stored: conv.UnreadFor(p), Actual: actual,
				})
			}
		}
	}
	return out
}

type snapshot struct {
	posts    []*domain.Post
	comments []*domain.Comment
	convs    []*domain.Conversation
	msgs     []*domain.Message
}

func (s *reconcileService) load(ctx context.Context, tx *storage.Tx) (*snapshot, error) {
	var (
		snap snapshot
		err  error
	)
	if snap.posts, err = s.posts.WithTx(tx).All(ctx); err != nil {
		return nil, err
	}
	if snap.comments, err = s.comments.WithTx(tx).All(ctx); err != nil {
		return nil, err
	}
	if snap.convs, err = s.conversations.WithTx(tx).All(ctx); err != nil {
		return nil, err
	}
	if snap.msgs, err = s.messages.WithTx(tx).All(ctx); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Check reports every counter that disagrees with the live records
func (s *reconcileService) Check(ctx context.Context) ([]common.InvariantViolation, error) {
	var found []common.InvariantViolation
	// a consistent view needs all four collections locked together
	err := s.store.Update(ctx, reconcileCollections, func(tx *storage.Tx) error {
		snap, err := s.load(ctx, tx)
		if err != nil {
			return err
		}
		want := countLive(snap.comments, snap.msgs, snap.convs)
		found = violations(snap.posts, snap.comments, snap.convs, want)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, v := range found {
		invariantViolationsTotal.WithLabelValues(v.Collection, fieldLabel(v.Field)).Inc()
		s.log.Warn().
			Str("collection", v.Collection).
			Str("id", v.ID).
			Str("field", v.Field).
			Int("stored", v.Stored).
			Int("actual", v.Actual).
			Msg("invariant violation")
	}
	return found, nil
}

// Reconcile rewrites every mismatched counter in one transaction and returns
// what it repaired
func (s *reconcileService) Reconcile(ctx context.Context) ([]common.InvariantViolation, error) {
	var repaired []common.InvariantViolation
	err := s.store.Update(ctx, reconcileCollections, func(tx *storage.Tx) error {
		snap, err := s.load(ctx, tx)
		if err != nil {
			return err
		}
		want := countLive(snap.comments, snap.msgs, snap.convs)
		repaired = violations(snap.posts, snap.comments, snap.convs, want)
		if len(repaired) == 0 {
			return nil
		}

		if _, err := s.posts.WithTx(tx).UpdateMany(ctx, nil, func(p *domain.Post) (bool, error) {
			if p.CommentCount == want.comments[p.ID] {
				return false, nil
			}
			p.CommentCount = want.comments[p.ID]
			return true, nil
		}); err != nil {
			return err
		}
		if _, err := s.comments.WithTx(tx).UpdateMany(ctx, nil, func(c *domain.Comment) (bool, error) {
			if c.ReplyCount == want.replies[c.ID] {
				return false, nil
			}
			c.ReplyCount = want.replies[c.ID]
			return true, nil
		}); err != nil {
			return err
		}
		_, err = s.conversations.WithTx(tx).UpdateMany(ctx, nil, func(c *domain.Conversation) (bool, error) {
			changed := false
			for _, p := range c.Participants {
				if actual := want.unread[c.ID][p]; c.UnreadFor(p) != actual {
					c.SetUnread(p, actual)
					changed = true
				}
			}
			return changed, nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, v := range repaired {
		invariantRepairsTotal.WithLabelValues(v.Collection, fieldLabel(v.Field)).Inc()
	}
	if len(repaired) > 0 {
		s.log.Warn().Int("repaired", len(repaired)).Msg("denormalized counters repaired")
	} else {
		s.log.Debug().Msg("counters consistent")
	}
	return repaired, nil
}

func fieldLabel(field string) string {
	if strings.HasPrefix(field, "unread_count.") {
		return "unread_count"
	}
	return field
}

// PurgeDeleted hard-removes conversations and messages every participant has
// deleted, together with the messages of purged conversations
func (s *reconcileService) PurgeDeleted(ctx context.Context) (*PurgeResult, error) {
	res := &PurgeResult{}
	err := s.store.Update(ctx, messagingCollections, func(tx *storage.Tx) error {
		var purged []string
		n, err := s.conversations.WithTx(tx).RemoveWhere(ctx, func(c *domain.Conversation) bool {
			if c.IsDeleted {
				purged = append(purged, c.ID)
			}
			return c.IsDeleted
		})
		if err != nil {
			return err
		}
		res.Conversations = n

		res.Messages, err = s.messages.WithTx(tx).RemoveWhere(ctx, func(m *domain.Message) bool {
			return m.IsDeleted || slices.Contains(purged, m.ConversationID)
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	purgedRecordsTotal.WithLabelValues(domain.CollectionConversations).Add(float64(res.Conversations))
	purgedRecordsTotal.WithLabelValues(domain.CollectionMessages).Add(float64(res.Messages))
	s.log.Info().
		Int("conversations", res.Conversations).
		Int("messages", res.Messages).
		Msg("deleted records purged")
	return res, nil
}
