package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/damoang/angple-store/internal/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	opts.Logger = zerolog.Nop()
	s := Open(filepath.Join(t.TempDir(), "data"), opts)
	require.NoError(t, s.Init())
	return s
}

func raw(docs ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(docs))
	for i, d := range docs {
		out[i] = json.RawMessage(d)
	}
	return out
}

func TestRead_AbsentCollectionIsCreatedEmpty(t *testing.T) {
	s := newTestStore(t, Options{})

	docs, err := s.Read(context.Background(), "posts")
	require.NoError(t, err)
	assert.Empty(t, docs)

	data, err := os.ReadFile(filepath.Join(s.Dir(), "posts.json"))
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestWriteThenRead(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "users", raw(`{"id":"1"}`, `{"id":"2"}`)))

	docs, err := s.Read(ctx, "users")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.JSONEq(t, `{"id":"2"}`, string(docs[1]))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file left behind: %s", e.Name())
	}
}

func TestWrite_EncodeFailureKeepsPreviousFile(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "users", raw(`{"id":"1"}`)))

	err := s.Write(ctx, "users", raw(`{"id":`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrStorage))

	docs, err := s.Read(ctx, "users")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.JSONEq(t, `{"id":"1"}`, string(docs[0]))
}

func TestRead_CorruptFileIsQuarantined(t *testing.T) {
	s := newTestStore(t, Options{})
	path := filepath.Join(s.Dir(), "comments.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	docs, err := s.Read(context.Background(), "comments")
	require.NoError(t, err)
	assert.Empty(t, docs)

	matches, err := filepath.Glob(filepath.Join(s.Dir(), "comments.corrupt-*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	kept, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(kept))

	names, err := s.ListCollections()
	require.NoError(t, err)
	assert.Equal(t, []string{"comments"}, names)
}

func TestRead_CorruptFileStrict(t *testing.T) {
	s := newTestStore(t, Options{StrictDecode: true})
	path := filepath.Join(s.Dir(), "comments.json")
	require.NoError(t, os.WriteFile(path, []byte("[1,"), 0o644))

	_, err := s.Read(context.Background(), "comments")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptCollection))
	assert.True(t, errors.Is(err, common.ErrStorage))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[1,", string(data))
}

func TestInvalidCollectionName(t *testing.T) {
	s := newTestStore(t, Options{})
	for _, name := range []string{"", "Users", "../etc", "a.b", "1abc", strings.Repeat("a", 65)} {
		_, err := s.Read(context.Background(), name)
		assert.ErrorIs(t, err, ErrInvalidCollection, name)
		assert.ErrorIs(t, err, common.ErrInvalidInput, name)
	}
}

func TestLockTimeout(t *testing.T) {
	s := newTestStore(t, Options{LockTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.Update(ctx, []string{"messages"}, func(tx *Tx) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	_, err := s.Read(ctx, "messages")
	close(done)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Equal(t, 503, common.HTTPStatus(err))
}

func TestLock_ContextCancelled(t *testing.T) {
	s := newTestStore(t, Options{LockTimeout: time.Second})

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.Update(context.Background(), []string{"users"}, func(tx *Tx) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Read(ctx, "users")
	assert.ErrorIs(t, err, context.Canceled)
}
