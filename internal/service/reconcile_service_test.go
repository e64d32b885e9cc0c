package service

import (
	"testing"

	"github.com/damoang/angple-store/internal/domain"
	"github.com/damoang/angple-store/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_RepairsTamperedCounters(t *testing.T) {
	env := newTestEnv(t)
	a := env.account(t, "Alice", "a@example.com")
	b := env.account(t, "Bob", "b@example.com")

	p := env.post(t, a.ID, "post")
	top := env.comment(t, p.ID, "", b.ID, "top")
	env.comment(t, p.ID, top.ID, a.ID, "reply")
	m := env.send(t, a.ID, b.ID, "hi")

	violations, err := env.reconciler.Check(env.ctx)
	require.NoError(t, err)
	require.Empty(t, violations)

	// simulate a crash between file renames
	posts := repository.New[*domain.Post](env.store, domain.CollectionPosts)
	comments := repository.New[*domain.Comment](env.store, domain.CollectionComments)
	convs := repository.New[*domain.Conversation](env.store, domain.CollectionConversations)
	_, err = posts.Update(env.ctx, p.ID, repository.Fields{"comment_count": 9})
	require.NoError(t, err)
	_, err = comments.Update(env.ctx, top.ID, repository.Fields{"reply_count": 0})
	require.NoError(t, err)
	_, err = convs.Modify(env.ctx, m.ConversationID, func(c *domain.Conversation) error {
		c.SetUnread(b.ID, 5)
		c.SetUnread(a.ID, 2)
		return nil
	})
	require.NoError(t, err)

	violations, err = env.reconciler.Check(env.ctx)
	require.NoError(t, err)
	assert.Len(t, violations, 4)

	byField := map[string]int{}
	for _, v := range violations {
		byField[v.Field] = v.Actual
	}
	assert.Equal(t, 2, byField["comment_count"])
	assert.Equal(t, 1, byField["reply_count"])
	assert.Equal(t, 1, byField["unread_count."+b.ID])
	assert.Equal(t, 0, byField["unread_count."+a.ID])

	repaired, err := env.reconciler.Reconcile(env.ctx)
	require.NoError(t, err)
	assert.Len(t, repaired, 4)

	violations, err = env.reconciler.Check(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, violations)

	stored, err := posts.FindByID(env.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CommentCount)
	assert.Equal(t, 1, env.unread(t, m.ConversationID, b.ID))

	repaired, err = env.reconciler.Reconcile(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, repaired)
}

func TestPurgeDeleted_KeepsPartiallyDeleted(t *testing.T) {
	env := newTestEnv(t)
	a := env.account(t, "Alice", "a@example.com")
	b := env.account(t, "Bob", "b@example.com")
	m := env.send(t, a.ID, b.ID, "keep me")

	require.NoError(t, env.messaging.DeleteConversation(env.ctx, m.ConversationID, a.ID))

	res, err := env.reconciler.PurgeDeleted(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Conversations)
	assert.Zero(t, res.Messages)

	msgs, _, err := env.messaging.GetMessages(env.ctx, m.ConversationID, b.ID, 1, 20)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
