package service

import (
	"context"
	"errors"
	"strings"

	"github.com/damoang/angple-store/internal/common"
	"github.com/damoang/angple-store/internal/domain"
	"github.com/damoang/angple-store/internal/repository"
	"github.com/damoang/angple-store/internal/storage"
)

var contentCollections = []string{domain.CollectionPosts, domain.CollectionComments}

// AddComment stores a comment or reply and bumps the post's comment count
// and, for a reply, the parent's reply count in the same transaction
func (s *contentService) AddComment(ctx context.Context, req *domain.CreateCommentRequest) (*domain.Comment, error) {
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		return nil, common.NewValidationError("content", "is required")
	}
	if err := common.Validate(req); err != nil {
		return nil, err
	}

	var (
		created *domain.Comment
		post    *domain.Post
		parent  *domain.Comment
	)
	err := s.store.Update(ctx, contentCollections, func(tx *storage.Tx) error {
		posts, comments := s.posts.WithTx(tx), s.comments.WithTx(tx)

		var err error
		post, err = posts.FindByID(ctx, req.PostID)
		if err != nil {
			return err
		}
		if post.IsDeleted {
			return common.ErrPostNotFound
		}

		if req.ParentID != "" {
			parent, err = comments.FindByID(ctx, req.ParentID)
			if err != nil {
				return err
			}
			if parent.IsDeleted || parent.PostID != post.ID {
				return common.ErrCommentNotFound
			}
			if parent.IsReply() {
				return common.NewValidationError("parent_id", "must reference a top-level comment")
			}
		}

		created, err = comments.Insert(ctx, &domain.Comment{
			PostID:       post.ID,
			ParentID:     req.ParentID,
			AuthorID:     req.AuthorID,
			AuthorName:   req.AuthorName,
			AuthorAvatar: req.AuthorAvatar,
			Content:      req.Content,
			Likes:        []string{},
		})
		if err != nil {
			return err
		}

		if parent != nil {
			if _, err := comments.Modify(ctx, parent.ID, func(c *domain.Comment) error {
				c.ReplyCount++
				return nil
			}); err != nil {
				return err
			}
		}
		_, err = posts.Modify(ctx, post.ID, func(p *domain.Post) error {
			p.CommentCount++
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("comment_id", created.ID).
		Str("post_id", created.PostID).
		Bool("reply", created.IsReply()).
		Msg("comment added")

	if parent != nil {
		if parent.AuthorID != created.AuthorID {
			s.notify(ctx, &domain.Notification{
				UserID:  parent.AuthorID,
				Type:    domain.NotifyReply,
				Title:   "New reply to your comment",
				Content: created.Content,
				Link:    "/posts/" + post.ID + "#comment-" + created.ID,
				ActorID: created.AuthorID,
			})
		}
	} else if post.AuthorID != created.AuthorID {
		s.notify(ctx, &domain.Notification{
			UserID:  post.AuthorID,
			Type:    domain.NotifyComment,
			Title:   "New comment on your post",
			Content: created.Content,
			Link:    "/posts/" + post.ID + "#comment-" + created.ID,
			ActorID: created.AuthorID,
		})
	}
	return created, nil
}

// DeleteComment soft-deletes a comment and decrements the counters that
// include it, never below zero. Only the author may delete it.
func (s *contentService) DeleteComment(ctx context.Context, id, accountID string) error {
	err := s.store.Update(ctx, contentCollections, func(tx *storage.Tx) error {
		posts, comments := s.posts.WithTx(tx), s.comments.WithTx(tx)

		comment, err := comments.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if comment.IsDeleted {
			return common.ErrCommentNotFound
		}
		if comment.AuthorID != accountID {
			return common.NewPermissionError("delete", "comment")
		}

		if _, err := comments.Modify(ctx, id, func(c *domain.Comment) error {
			now := repository.Now()
			c.IsDeleted = true
			c.DeletedAt = &now
			return nil
		}); err != nil {
			return err
		}

		if comment.IsReply() {
			_, err := comments.Modify(ctx, comment.ParentID, func(c *domain.Comment) error {
				c.ReplyCount = max(0, c.ReplyCount-1)
				return nil
			})
			if err != nil && !errors.Is(err, common.ErrNotFound) {
				return err
			}
		}

		_, err = posts.Modify(ctx, comment.PostID, func(p *domain.Post) error {
			p.CommentCount = max(0, p.CommentCount-1)
			return nil
		})
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Debug().Str("comment_id", id).Msg("comment deleted")
	return nil
}

// GetComment returns a comment by id, soft-deleted ones included
func (s *contentService) GetComment(ctx context.Context, id string) (*domain.Comment, error) {
	return s.comments.FindByID(ctx, id)
}

// FindCommentsByPost returns the live comments and replies of a post in
// creation order
func (s *contentService) FindCommentsByPost(ctx context.Context, postID string) ([]*domain.Comment, error) {
	return s.comments.FindMany(ctx, repository.Filter{"post_id": postID, "is_deleted": false})
}

// FindReplies returns the live replies to a comment in creation order
func (s *contentService) FindReplies(ctx context.Context, commentID string) ([]*domain.Comment, error) {
	return s.comments.FindMany(ctx, repository.Filter{"parent_id": commentID, "is_deleted": false})
}

// ToggleCommentLike adds the account's like if absent, otherwise removes it
func (s *contentService) ToggleCommentLike(ctx context.Context, commentID, accountID string) (*domain.LikeResult, error) {
	if accountID == "" {
		return nil, common.NewValidationError("account_id", "is required")
	}
	var liked bool
	comment, err := s.comments.Modify(ctx, commentID, func(c *domain.Comment) error {
		if c.IsDeleted {
			return common.ErrCommentNotFound
		}
		liked = c.ToggleLike(accountID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &domain.LikeResult{Liked: liked, Likes: len(comment.Likes)}, nil
}
