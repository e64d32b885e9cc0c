package domain

import "time"

// Comment represents a post comment or a one-level reply (comments collection)
type Comment struct {
	Record
	PostID       string     `json:"post_id"`
	ParentID     string     `json:"parent_id"`
	AuthorID     string     `json:"author_id"`
	AuthorName   string     `json:"author_name"`
	AuthorAvatar string     `json:"author_avatar,omitempty"`
	Content      string     `json:"content"`
	Likes        []string   `json:"likes"`
	ReplyCount   int        `json:"reply_count"`
	IsDeleted    bool       `json:"is_deleted"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// IsReply reports whether the comment replies to another comment
func (c *Comment) IsReply() bool {
	return c.ParentID != ""
}

// ToggleLike flips the account's like and reports whether it is now liked
func (c *Comment) ToggleLike(accountID string) bool {
	var liked bool
	c.Likes, liked = toggle(c.Likes, accountID)
	return liked
}

// CreateCommentRequest represents a create comment request
type CreateCommentRequest struct {
	PostID       string `json:"post_id" validate:"required"`
	ParentID     string `json:"parent_id"`
	AuthorID     string `json:"author_id" validate:"required"`
	AuthorName   string `json:"author_name"`
	AuthorAvatar string `json:"author_avatar"`
	Content      string `json:"content" validate:"max=5000"`
}
