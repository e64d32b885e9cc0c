package domain

import (
	"slices"
	"time"
)

// PostStatus publication state of a post
type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostPublished PostStatus = "published"
	PostArchived  PostStatus = "archived"
)

// Visibility audience of a post
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityMembers Visibility = "members"
	VisibilityPrivate Visibility = "private"
)

// Category of a post
type Category string

const (
	CategoryGeneral       Category = "general"
	CategoryHousing       Category = "housing"
	CategoryRoommates     Category = "roommates"
	CategoryMarketplace   Category = "marketplace"
	CategoryEvents        Category = "events"
	CategoryAdvice        Category = "advice"
	CategoryAnnouncements Category = "announcements"
)

// AnonymousAuthorName is the display name stored for anonymous posts
const AnonymousAuthorName = "Anonymous"

// Post represents a forum post (posts collection)
type Post struct {
	Record
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	AuthorID     string     `json:"author_id"`
	AuthorName   string     `json:"author_name"`
	AuthorAvatar string     `json:"author_avatar,omitempty"`
	Status       PostStatus `json:"status"`
	Visibility   Visibility `json:"visibility"`
	Category     Category   `json:"category"`
	Tags         []string   `json:"tags"`
	Likes        []string   `json:"likes"`
	Views        int        `json:"views"`
	CommentCount int        `json:"comment_count"`
	IsPinned     bool       `json:"is_pinned"`
	IsFeatured   bool       `json:"is_featured"`
	IsAnonymous  bool       `json:"is_anonymous"`
	IsDeleted    bool       `json:"is_deleted"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// LikedBy reports whether the account liked the post
func (p *Post) LikedBy(accountID string) bool {
	return slices.Contains(p.Likes, accountID)
}

// ToggleLike flips the account's like and reports whether it is now liked
func (p *Post) ToggleLike(accountID string) bool {
	var liked bool
	p.Likes, liked = toggle(p.Likes, accountID)
	return liked
}

// CreatePostRequest represents a create post request
type CreatePostRequest struct {
	Title        string     `json:"title" validate:"max=200"`
	Content      string     `json:"content" validate:"max=50000"`
	AuthorID     string     `json:"author_id" validate:"required"`
	AuthorName   string     `json:"author_name"`
	AuthorAvatar string     `json:"author_avatar"`
	Status       PostStatus `json:"status" validate:"omitempty,oneof=draft published archived"`
	Visibility   Visibility `json:"visibility" validate:"omitempty,oneof=public members private"`
	Category     Category   `json:"category" validate:"omitempty,oneof=general housing roommates marketplace events advice announcements"`
	Tags         []string   `json:"tags" validate:"max=10,dive,max=30"`
	IsPinned     bool       `json:"is_pinned"`
	IsFeatured   bool       `json:"is_featured"`
	IsAnonymous  bool       `json:"is_anonymous"`
}

// UpdatePostRequest represents an update post request; nil fields are left unchanged
type UpdatePostRequest struct {
	Title      *string     `json:"title" validate:"omitempty,max=200"`
	Content    *string     `json:"content" validate:"omitempty,max=50000"`
	Status     *PostStatus `json:"status" validate:"omitempty,oneof=draft published archived"`
	Visibility *Visibility `json:"visibility" validate:"omitempty,oneof=public members private"`
	Category   *Category   `json:"category" validate:"omitempty,oneof=general housing roommates marketplace events advice announcements"`
	Tags       []string    `json:"tags" validate:"omitempty,max=10,dive,max=30"`
}

// ListPostsQuery filters for paged post listing
type ListPostsQuery struct {
	Page       int
	PageSize   int
	Category   Category
	Visibility Visibility
}

// LikeResult is the outcome of a like toggle
type LikeResult struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}
