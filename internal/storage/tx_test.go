package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdate_CommitsAllStagedCollections(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	err := s.Update(ctx, []string{"posts", "comments", "posts"}, func(tx *Tx) error {
		assert.Equal(t, []string{"comments", "posts"}, tx.Names())
		if err := tx.Write("posts", raw(`{"id":"p1","comment_count":1}`)); err != nil {
			return err
		}
		return tx.Write("comments", raw(`{"id":"c1","post_id":"p1"}`))
	})
	require.NoError(t, err)

	posts, err := s.Read(ctx, "posts")
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	comments, err := s.Read(ctx, "comments")
	require.NoError(t, err)
	assert.Len(t, comments, 1)
}

func TestUpdate_ReadSeesStagedWrites(t *testing.T) {
	s := newTestStore(t, Options{})

	err := s.Update(context.Background(), []string{"posts"}, func(tx *Tx) error {
		require.NoError(t, tx.Write("posts", raw(`{"id":"p1"}`)))
		docs, err := tx.Read("posts")
		require.NoError(t, err)
		assert.Len(t, docs, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdate_ErrorDiscardsStagedWrites(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, []string{"posts"}, func(tx *Tx) error {
		require.NoError(t, tx.Write("posts", raw(`{"id":"p1"}`)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	docs, err := s.Read(ctx, "posts")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestUpdate_UnlockedCollection(t *testing.T) {
	s := newTestStore(t, Options{})

	err := s.Update(context.Background(), []string{"posts"}, func(tx *Tx) error {
		_, err := tx.Read("comments")
		return err
	})
	assert.ErrorIs(t, err, ErrNotLocked)
}

func TestUpdate_RollsBackOnPartialCommit(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "alpha", raw(`{"id":"old"}`)))
	require.NoError(t, s.Write(ctx, "beta", raw(`{"id":"old"}`)))

	err := s.Update(ctx, []string{"alpha", "beta"}, func(tx *Tx) error {
		require.NoError(t, tx.Write("alpha", raw(`{"id":"new"}`)))
		require.NoError(t, tx.Write("beta", raw(`{"id":"new"}`)))

		// make the second rename fail: a non-empty directory cannot be replaced by a file
		betaPath := filepath.Join(s.Dir(), "beta.json")
		require.NoError(t, os.Remove(betaPath))
		require.NoError(t, os.Mkdir(betaPath, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(betaPath, "x"), []byte("x"), 0o644))
		return nil
	})
	require.Error(t, err)

	data, err := os.ReadFile(filepath.Join(s.Dir(), "alpha.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"old"`)
	assert.NotContains(t, string(data), `"new"`)
}

func TestUpdate_SerializesWriters(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, []string{"counter"}, func(tx *Tx) error {
				docs, err := tx.Read("counter")
				if err != nil {
					return err
				}
				return tx.Write("counter", append(docs, raw(`{}`)...))
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	docs, err := s.Read(ctx, "counter")
	require.NoError(t, err)
	assert.Len(t, docs, n)
}
