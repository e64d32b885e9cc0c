package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/damoang/angple-store/internal/common"
	"github.com/damoang/angple-store/internal/domain"
	"github.com/damoang/angple-store/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type RepositorySuite struct {
	suite.Suite
	ctx   context.Context
	store *storage.Store
	posts *Repository[*domain.Post]
	clock time.Time
}

func (s *RepositorySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = storage.Open(filepath.Join(s.T().TempDir(), "data"), storage.Options{Logger: zerolog.Nop()})
	s.Require().NoError(s.store.Init())
	s.posts = New[*domain.Post](s.store, domain.CollectionPosts)

	s.clock = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	Now = func() time.Time { return s.clock }
}

func (s *RepositorySuite) TearDownTest() {
	Now = func() time.Time { return time.Now().UTC() }
}

func (s *RepositorySuite) tick() {
	s.clock = s.clock.Add(time.Minute)
}

func (s *RepositorySuite) insert(title string, mod func(*domain.Post)) *domain.Post {
	p := &domain.Post{Title: title, Content: "body", AuthorID: "u1", Status: domain.PostPublished}
	if mod != nil {
		mod(p)
	}
	out, err := s.posts.Insert(s.ctx, p)
	s.Require().NoError(err)
	return out
}

func (s *RepositorySuite) TestInsertRoundTrip() {
	in := &domain.Post{Title: "Welcome", Content: "hello", AuthorID: "u1", Tags: []string{"a"}}
	out, err := s.posts.Insert(s.ctx, in)
	s.Require().NoError(err)

	s.NotEmpty(out.ID)
	s.Equal(s.clock, out.CreatedAt)
	s.Equal(s.clock, out.UpdatedAt)

	got, err := s.posts.FindByID(s.ctx, out.ID)
	s.Require().NoError(err)
	s.Equal(out, got)
}

func (s *RepositorySuite) TestInsertAlwaysGeneratesID() {
	a := s.insert("a", func(p *domain.Post) { p.ID = "fixed" })
	b := s.insert("b", func(p *domain.Post) { p.ID = "fixed" })
	s.NotEqual("fixed", a.ID)
	s.NotEqual(a.ID, b.ID)
}

func (s *RepositorySuite) TestFindByIDMissing() {
	_, err := s.posts.FindByID(s.ctx, "nope")
	s.ErrorIs(err, common.ErrNotFound)
	s.ErrorIs(err, common.ErrPostNotFound)
}

func (s *RepositorySuite) TestFindMany() {
	s.insert("one", func(p *domain.Post) { p.Category = domain.CategoryHousing })
	s.insert("two", func(p *domain.Post) { p.Category = domain.CategoryHousing; p.Views = 3 })
	s.insert("three", func(p *domain.Post) { p.Category = domain.CategoryEvents })

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"empty filter", Filter{}, []string{"one", "two", "three"}},
		{"nil filter", nil, []string{"one", "two", "three"}},
		{"single field", Filter{"category": domain.CategoryHousing}, []string{"one", "two"}},
		{"numeric field", Filter{"category": "housing", "views": 3}, []string{"two"}},
		{"bool field", Filter{"is_deleted": false}, []string{"one", "two", "three"}},
		{"no match", Filter{"category": "advice"}, nil},
		{"missing field is null", Filter{"no_such_field": nil}, []string{"one", "two", "three"}},
		{"strict equality", Filter{"views": "3"}, nil},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			got, err := s.posts.FindMany(s.ctx, tt.filter)
			s.Require().NoError(err)
			var titles []string
			for _, p := range got {
				titles = append(titles, p.Title)
			}
			s.Equal(tt.want, titles)
		})
	}
}

func (s *RepositorySuite) TestFindOneReturnsFirstInStoredOrder() {
	first := s.insert("first", nil)
	s.insert("second", nil)

	got, err := s.posts.FindOne(s.ctx, Filter{"author_id": "u1"})
	s.Require().NoError(err)
	s.Equal(first.ID, got.ID)

	_, err = s.posts.FindOne(s.ctx, Filter{"author_id": "u9"})
	s.ErrorIs(err, common.ErrNotFound)
}

func (s *RepositorySuite) TestCountAndExists() {
	s.insert("a", nil)
	s.insert("b", func(p *domain.Post) { p.AuthorID = "u2" })

	n, err := s.posts.Count(s.ctx, Filter{"author_id": "u1"})
	s.Require().NoError(err)
	s.Equal(1, n)

	ok, err := s.posts.Exists(s.ctx, Filter{"author_id": "u2"})
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.posts.Exists(s.ctx, Filter{"author_id": "u3"})
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RepositorySuite) TestUpdateMergesFields() {
	p := s.insert("old", nil)
	s.tick()

	got, err := s.posts.Update(s.ctx, p.ID, Fields{"title": "new", "views": 7})
	s.Require().NoError(err)
	s.Equal("new", got.Title)
	s.Equal(7, got.Views)
	s.Equal("body", got.Content)
	s.Equal(p.CreatedAt, got.CreatedAt)
	s.Equal(s.clock, got.UpdatedAt)

	stored, err := s.posts.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(got, stored)
}

func (s *RepositorySuite) TestUpdateWithCurrentValuesOnlyTouchesUpdatedAt() {
	p := s.insert("same", func(p *domain.Post) { p.Tags = []string{"x", "y"}; p.Views = 2 })
	s.tick()

	got, err := s.posts.Update(s.ctx, p.ID, Fields{
		"title": p.Title, "content": p.Content, "tags": p.Tags, "views": p.Views,
	})
	s.Require().NoError(err)

	s.True(got.UpdatedAt.After(p.UpdatedAt))
	got.UpdatedAt = p.UpdatedAt
	s.Equal(p, got)
}

func (s *RepositorySuite) TestUpdateRejectsBadFields() {
	p := s.insert("x", nil)

	tests := []struct {
		name   string
		fields Fields
	}{
		{"immutable id", Fields{"id": "other"}},
		{"immutable created_at", Fields{"created_at": time.Now()}},
		{"unknown field", Fields{"titel": "typo"}},
		{"wrong type", Fields{"views": "many"}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.posts.Update(s.ctx, p.ID, tt.fields)
			s.ErrorIs(err, common.ErrInvalidInput)
		})
	}

	stored, err := s.posts.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p, stored)
}

func (s *RepositorySuite) TestUpdateMissing() {
	_, err := s.posts.Update(s.ctx, "nope", Fields{"title": "x"})
	s.ErrorIs(err, common.ErrPostNotFound)
}

func (s *RepositorySuite) TestModify() {
	p := s.insert("x", nil)
	s.tick()

	got, err := s.posts.Modify(s.ctx, p.ID, func(p *domain.Post) error {
		p.Views++
		p.ID = "hijack"
		return nil
	})
	s.Require().NoError(err)
	s.Equal(p.ID, got.ID)
	s.Equal(1, got.Views)
	s.Equal(s.clock, got.UpdatedAt)

	boom := errors.New("boom")
	_, err = s.posts.Modify(s.ctx, p.ID, func(p *domain.Post) error {
		p.Views = 100
		return boom
	})
	s.ErrorIs(err, boom)

	stored, err := s.posts.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(1, stored.Views)
}

func (s *RepositorySuite) TestUpdateMany() {
	s.insert("a", nil)
	s.insert("b", nil)
	s.insert("c", func(p *domain.Post) { p.AuthorID = "u2" })

	n, err := s.posts.UpdateMany(s.ctx, Filter{"author_id": "u1"}, func(p *domain.Post) (bool, error) {
		if p.Title == "b" {
			return false, nil
		}
		p.IsPinned = true
		return true, nil
	})
	s.Require().NoError(err)
	s.Equal(1, n)

	pinned, err := s.posts.FindMany(s.ctx, Filter{"is_pinned": true})
	s.Require().NoError(err)
	s.Require().Len(pinned, 1)
	s.Equal("a", pinned[0].Title)
}

func (s *RepositorySuite) TestRemove() {
	p := s.insert("a", nil)
	s.insert("b", nil)

	removed, err := s.posts.Remove(s.ctx, p.ID)
	s.Require().NoError(err)
	s.True(removed)

	removed, err = s.posts.Remove(s.ctx, p.ID)
	s.Require().NoError(err)
	s.False(removed)

	all, err := s.posts.All(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *RepositorySuite) TestRemoveWhere() {
	s.insert("a", func(p *domain.Post) { p.IsDeleted = true })
	s.insert("b", nil)
	s.insert("c", func(p *domain.Post) { p.IsDeleted = true })

	n, err := s.posts.RemoveWhere(s.ctx, func(p *domain.Post) bool { return p.IsDeleted })
	s.Require().NoError(err)
	s.Equal(2, n)

	all, err := s.posts.All(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal("b", all[0].Title)
}

func (s *RepositorySuite) TestWithTx() {
	comments := New[*domain.Comment](s.store, domain.CollectionComments)

	var postID string
	err := s.store.Update(s.ctx, []string{domain.CollectionPosts, domain.CollectionComments}, func(tx *storage.Tx) error {
		p, err := s.posts.WithTx(tx).Insert(s.ctx, &domain.Post{Title: "t", Content: "c", AuthorID: "u1"})
		if err != nil {
			return err
		}
		postID = p.ID
		if _, err := comments.WithTx(tx).Insert(s.ctx, &domain.Comment{PostID: p.ID, Content: "hi"}); err != nil {
			return err
		}
		_, err = s.posts.WithTx(tx).Modify(s.ctx, p.ID, func(p *domain.Post) error {
			p.CommentCount++
			return nil
		})
		return err
	})
	s.Require().NoError(err)

	p, err := s.posts.FindByID(s.ctx, postID)
	s.Require().NoError(err)
	s.Equal(1, p.CommentCount)
	n, err := comments.Count(s.ctx, Filter{"post_id": postID})
	s.Require().NoError(err)
	s.Equal(1, n)
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func TestFilterCompile(t *testing.T) {
	m, err := Filter{"at": time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "n": 1}.compile()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02T03:04:05Z", m["at"])
	assert.Equal(t, float64(1), m["n"])

	ok, err := m.match([]byte(`{"at":"2024-01-02T03:04:05Z","n":1}`))
	require.NoError(t, err)
	assert.True(t, ok)
}
