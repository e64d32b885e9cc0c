package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/damoang/angple-store/internal/middleware"
	"github.com/damoang/angple-store/internal/scheduler"
	"github.com/damoang/angple-store/internal/service"
	"github.com/damoang/angple-store/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-key"

type fixture struct {
	store     *storage.Store
	router    *gin.Engine
	backupDir string
	ran       int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	store := storage.Open(filepath.Join(root, "data"), storage.Options{Logger: zerolog.Nop()})
	require.NoError(t, store.Init())

	f := &fixture{store: store, backupDir: filepath.Join(root, "backups")}
	sched := scheduler.New(time.Hour, zerolog.Nop())
	require.NoError(t, sched.Every("noop", time.Hour, func(context.Context) error {
		f.ran++
		return nil
	}))

	h := NewHandler(store, service.NewReconcileService(store, zerolog.Nop()), sched, nil, f.backupDir)
	f.router = NewRouter(h, RouterConfig{APIKey: testKey})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, key string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set(middleware.APIKeyHeader, key)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var body map[string]any
	if w.Header().Get("Content-Type") != "" && w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &body)
	}
	return w, body
}

func seed(t *testing.T, store *storage.Store, name string, docs ...string) {
	t.Helper()
	raw := make([]json.RawMessage, len(docs))
	for i, d := range docs {
		raw[i] = json.RawMessage(d)
	}
	require.NoError(t, store.Write(context.Background(), name, raw))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w, body := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "disabled", body["cache"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/healthz", "")
	w, _ := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestAdmin_RequiresAPIKey(t *testing.T) {
	f := newFixture(t)
	w, _ := f.do(t, http.MethodGet, "/admin/collections", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = f.do(t, http.MethodGet, "/admin/collections", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body := f.do(t, http.MethodGet, "/admin/collections", testKey)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
}

func TestAdmin_ListCollections(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, "posts", `{"id":"p1"}`, `{"id":"p2"}`)

	w, body := f.do(t, http.MethodGet, "/admin/collections", testKey)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "posts", data[0].(map[string]any)["name"])
	assert.EqualValues(t, 2, data[0].(map[string]any)["documents"])
}

func TestAdmin_BackupAndClear(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, "posts", `{"id":"p1"}`)

	w, body := f.do(t, http.MethodPost, "/admin/collections/posts/backup", testKey)
	require.Equal(t, http.StatusOK, w.Code)
	path := body["data"].(map[string]any)["path"].(string)
	assert.Equal(t, f.backupDir, filepath.Dir(path))
	_, err := os.Stat(path)
	assert.NoError(t, err)

	w, _ = f.do(t, http.MethodPost, "/admin/collections/posts/clear", testKey)
	require.Equal(t, http.StatusOK, w.Code)
	docs, err := f.store.Read(context.Background(), "posts")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestAdmin_UnknownOrInvalidCollection(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(t, http.MethodPost, "/admin/collections/ghosts/backup", testKey)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, f.store.Exists("ghosts"))

	w, _ = f.do(t, http.MethodPost, "/admin/collections/Bad.Name/clear", testKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_ReconcileAndPurge(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, "posts", `{"id":"p1","comment_count":3,"created_at":"2026-01-01T00:00:00Z","updated_at":"2026-01-01T00:00:00Z"}`)

	w, body := f.do(t, http.MethodGet, "/admin/reconcile", testKey)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Len(t, data["violations"], 1)
	assert.Equal(t, false, data["repaired"])

	w, _ = f.do(t, http.MethodPost, "/admin/reconcile", testKey)
	require.Equal(t, http.StatusOK, w.Code)

	w, body = f.do(t, http.MethodGet, "/admin/reconcile", testKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["data"].(map[string]any)["violations"])

	w, body = f.do(t, http.MethodPost, "/admin/purge", testKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["data"].(map[string]any)["conversations"])
}

func TestAdmin_Tasks(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodGet, "/admin/tasks", testKey)
	require.Equal(t, http.StatusOK, w.Code)
	tasks := body["data"].([]any)
	require.Len(t, tasks, 1)
	assert.Equal(t, "noop", tasks[0].(map[string]any)["name"])

	w, _ = f.do(t, http.MethodPost, "/admin/tasks/noop/run", testKey)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.ran)

	w, _ = f.do(t, http.MethodPost, "/admin/tasks/missing/run", testKey)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.False(t, errors.Is(err, http.ErrServerClosed))
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
