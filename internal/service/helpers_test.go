package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/damoang/angple-store/internal/domain"
	"github.com/damoang/angple-store/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	ctx           context.Context
	store         *storage.Store
	accounts      AccountService
	content       ContentService
	messaging     MessagingService
	notifications NotificationService
	reconciler    ReconcileService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := storage.Open(filepath.Join(t.TempDir(), "data"), storage.Options{Logger: zerolog.Nop()})
	require.NoError(t, store.Init())

	log := zerolog.Nop()
	notifications := NewNotificationService(store, log)
	return &testEnv{
		ctx:           context.Background(),
		store:         store,
		accounts:      NewAccountService(store, nil, bcrypt.MinCost, log),
		content:       NewContentService(store, notifications, log),
		messaging:     NewMessagingService(store, notifications, log),
		notifications: notifications,
		reconciler:    NewReconcileService(store, log),
	}
}

func (e *testEnv) account(t *testing.T, name, email string) *domain.SafeAccount {
	t.Helper()
	acc, err := e.accounts.Create(e.ctx, &domain.CreateAccountRequest{
		Name: name, Email: email, Password: "secret123",
	})
	require.NoError(t, err)
	return acc
}

func (e *testEnv) post(t *testing.T, authorID, title string) *domain.Post {
	t.Helper()
	p, err := e.content.CreatePost(e.ctx, &domain.CreatePostRequest{
		Title: title, Content: title + " body", AuthorID: authorID, AuthorName: "author",
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) comment(t *testing.T, postID, parentID, authorID, content string) *domain.Comment {
	t.Helper()
	c, err := e.content.AddComment(e.ctx, &domain.CreateCommentRequest{
		PostID: postID, ParentID: parentID, AuthorID: authorID, AuthorName: "commenter", Content: content,
	})
	require.NoError(t, err)
	return c
}
