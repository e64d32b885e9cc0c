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

// ContentService post and comment business logic
type ContentService interface {
	CreatePost(ctx context.Context, req *domain.CreatePostRequest) (*domain.Post, error)
	GetPost(ctx context.Context, id string) (*domain.Post, error)
	ViewPost(ctx context.Context, id string) (*domain.Post, error)
	UpdatePost(ctx context.Context, id, actorID string, req *domain.UpdatePostRequest) (*domain.Post, error)
	DeletePost(ctx context.Context, id, actorID string) error
	ListPaged(ctx context.Context, q domain.ListPostsQuery) ([]*domain.Post, *common.PageMeta, error)
	ListByAuthor(ctx context.Context, authorID string, page, pageSize int) ([]*domain.Post, *common.PageMeta, error)
	Search(ctx context.Context, query string, page, pageSize int) ([]*domain.Post, *common.PageMeta, error)
	ToggleLike(ctx context.Context, postID, accountID string) (*domain.LikeResult, error)

	AddComment(ctx context.Context, req *domain.CreateCommentRequest) (*domain.Comment, error)
	DeleteComment(ctx context.Context, id, accountID string) error
	GetComment(ctx context.Context, id string) (*domain.Comment, error)
	FindCommentsByPost(ctx context.Context, postID string) ([]*domain.Comment, error)
	FindReplies(ctx context.Context, commentID string) ([]*domain.Comment, error)
	ToggleCommentLike(ctx context.Context, commentID, accountID string) (*domain.LikeResult, error)
}

type contentService struct {
	store    *storage.Store
	posts    *repository.Repository[*domain.Post]
	comments *repository.Repository[*domain.Comment]
	notifier Notifier
	log      zerolog.Logger
}

// NewContentService creates a new ContentService. notifier may be nil.
func NewContentService(store *storage.Store, notifier Notifier, log zerolog.Logger) ContentService {
	return &contentService{
		store:    store,
		posts:    repository.New[*domain.Post](store, domain.CollectionPosts),
		comments: repository.New[*domain.Comment](store, domain.CollectionComments),
		notifier: notifier,
		log:      log.With().Str("component", "content").Logger(),
	}
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// CreatePost validates and stores a new post
func (s *contentService) CreatePost(ctx context.Context, req *domain.CreatePostRequest) (*domain.Post, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Content = strings.TrimSpace(req.Content)
	if req.Title == "" {
		return nil, common.NewValidationError("title", "is required")
	}
	if req.Content == "" {
		return nil, common.NewValidationError("content", "is required")
	}
	if err := common.Validate(req); err != nil {
		return nil, err
	}

	post := &domain.Post{
		Title:        req.Title,
		Content:      req.Content,
		AuthorID:     req.AuthorID,
		AuthorName:   req.AuthorName,
		AuthorAvatar: req.AuthorAvatar,
		Status:       req.Status,
		Visibility:   req.Visibility,
		Category:     req.Category,
		Tags:         cleanTags(req.Tags),
		Likes:        []string{},
		IsPinned:     req.IsPinned,
		IsFeatured:   req.IsFeatured,
		IsAnonymous:  req.IsAnonymous,
	}
	if post.Status == "" {
		post.Status = domain.PostPublished
	}
	if post.Visibility == "" {
		post.Visibility = domain.VisibilityPublic
	}
	if post.Category == "" {
		post.Category = domain.CategoryGeneral
	}
	if post.IsAnonymous {
		post.AuthorName = domain.AnonymousAuthorName
		post.AuthorAvatar = ""
	}

	created, err := s.posts.Insert(ctx, post)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("post_id", created.ID).Str("category", string(created.Category)).Msg("post created")
	return created, nil
}

// GetPost returns a post by id, soft-deleted ones included
func (s *contentService) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	return s.posts.FindByID(ctx, id)
}

// ViewPost returns a live post and counts the view
func (s *contentService) ViewPost(ctx context.Context, id string) (*domain.Post, error) {
	return s.posts.Modify(ctx, id, func(p *domain.Post) error {
		if p.IsDeleted {
			return common.ErrPostNotFound
		}
		p.Views++
		return nil
	})
}

// UpdatePost lets the author change a live post
func (s *contentService) UpdatePost(ctx context.Context, id, actorID string, req *domain.UpdatePostRequest) (*domain.Post, error) {
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, common.NewValidationError("title", "is required")
		}
		req.Title = &title
	}
	if req.Content != nil {
		content := strings.TrimSpace(*req.Content)
		if content == "" {
			return nil, common.NewValidationError("content", "is required")
		}
		req.Content = &content
	}
	if err := common.Validate(req); err != nil {
		return nil, err
	}

	return s.posts.Modify(ctx, id, func(p *domain.Post) error {
		if p.IsDeleted {
			return common.ErrPostNotFound
		}
		if p.AuthorID != actorID {
			return common.NewPermissionError("update", "post")
		}
		if req.Title != nil {
			p.Title = *req.Title
		}
		if req.Content != nil {
			p.Content = *req.Content
		}
		if req.Status != nil {
			p.Status = *req.Status
		}
		if req.Visibility != nil {
			p.Visibility = *req.Visibility
		}
		if req.Category != nil {
			p.Category = *req.Category
		}
		if req.Tags != nil {
			p.Tags = cleanTags(req.Tags)
		}
		return nil
	})
}

// DeletePost soft-deletes a post. Only the author may delete it.
func (s *contentService) DeletePost(ctx context.Context, id, actorID string) error {
	_, err := s.posts.Modify(ctx, id, func(p *domain.Post) error {
		if p.IsDeleted {
			return common.ErrPostNotFound
		}
		if p.AuthorID != actorID {
			return common.NewPermissionError("delete", "post")
		}
		now := repository.Now()
		p.IsDeleted = true
		p.DeletedAt = &now
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("post_id", id).Msg("post deleted")
	return nil
}

// sortPosts orders pinned posts first, then newest first
func sortPosts(posts []*domain.Post) {
	slices.SortStableFunc(posts, func(a, b *domain.Post) int {
		if a.IsPinned != b.IsPinned {
			if a.IsPinned {
				return -1
			}
			return 1
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

// ListPaged returns live published posts with the requested visibility
// (public by default) and optional category
func (s *contentService) ListPaged(ctx context.Context, q domain.ListPostsQuery) ([]*domain.Post, *common.PageMeta, error) {
	visibility := q.Visibility
	if visibility == "" {
		visibility = domain.VisibilityPublic
	}
	filter := repository.Filter{
		"is_deleted": false,
		"status":     domain.PostPublished,
		"visibility": visibility,
	}
	if q.Category != "" {
		filter["category"] = q.Category
	}

	posts, err := s.posts.FindMany(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	sortPosts(posts)
	window, meta := common.Paginate(posts, q.Page, q.PageSize)
	return window, meta, nil
}

// ListByAuthor returns the live posts of one author, newest first
func (s *contentService) ListByAuthor(ctx context.Context, authorID string, page, pageSize int) ([]*domain.Post, *common.PageMeta, error) {
	posts, err := s.posts.FindMany(ctx, repository.Filter{"author_id": authorID, "is_deleted": false})
	if err != nil {
		return nil, nil, err
	}
	slices.SortStableFunc(posts, func(a, b *domain.Post) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	window, meta := common.Paginate(posts, page, pageSize)
	return window, meta, nil
}

// Search matches live published non-private posts where any query term is
// a substring of the title, the content or a tag
func (s *contentService) Search(ctx context.Context, query string, page, pageSize int) ([]*domain.Post, *common.PageMeta, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		window, meta := common.Paginate([]*domain.Post{}, page, pageSize)
		return window, meta, nil
	}

	posts, err := s.posts.FindFunc(ctx, func(p *domain.Post) bool {
		if p.IsDeleted || p.Status != domain.PostPublished || p.Visibility == domain.VisibilityPrivate {
			return false
		}
		return matchesAny(p, terms)
	})
	if err != nil {
		return nil, nil, err
	}
	sortPosts(posts)
	window, meta := common.Paginate(posts, page, pageSize)
	return window, meta, nil
}

func matchesAny(p *domain.Post, terms []string) bool {
	title := strings.ToLower(p.Title)
	content := strings.ToLower(p.Content)
	for _, term := range terms {
		if strings.Contains(title, term) || strings.Contains(content, term) {
			return true
		}
		for _, tag := range p.Tags {
			if strings.Contains(strings.ToLower(tag), term) {
				return true
			}
		}
	}
	return false
}

// ToggleLike adds the account's like if absent, otherwise removes it
func (s *contentService) ToggleLike(ctx context.Context, postID, accountID string) (*domain.LikeResult, error) {
	if accountID == "" {
		return nil, common.NewValidationError("account_id", "is required")
	}
	var liked bool
	post, err := s.posts.Modify(ctx, postID, func(p *domain.Post) error {
		if p.IsDeleted {
			return common.ErrPostNotFound
		}
		liked = p.ToggleLike(accountID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if liked && post.AuthorID != accountID {
		s.notify(ctx, &domain.Notification{
			UserID:  post.AuthorID,
			Type:    domain.NotifyLike,
			Title:   "Someone liked your post",
			Content: post.Title,
			Link:    "/posts/" + post.ID,
			ActorID: accountID,
		})
	}
	return &domain.LikeResult{Liked: liked, Likes: len(post.Likes)}, nil
}

// notify records a notification; failures are logged and never fail the caller
func (s *contentService) notify(ctx context.Context, n *domain.Notification) {
	if s.notifier == nil || n.UserID == "" {
		return
	}
	if _, err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn().Err(err).Str("user_id", n.UserID).Str("type", string(n.Type)).Msg("notification failed")
	}
}
