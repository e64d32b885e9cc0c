package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	config  string
	dataDir string
	backups string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("APP_ENV", "")
	root := t.TempDir()
	h := &harness{
		config:  filepath.Join(root, "config.yaml"),
		dataDir: filepath.Join(root, "data"),
		backups: filepath.Join(root, "backups"),
	}
	body := "app:\n  env: local\n  log_level: error\n" +
		"storage:\n  data_dir: " + h.dataDir + "\n  backup_dir: " + h.backups + "\n" +
		"security:\n  bcrypt_cost: 4\n"
	require.NoError(t, os.WriteFile(h.config, []byte(body), 0o644))
	return h
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand(&out, &errOut)
	cmd.SetArgs(append([]string{"--config", h.config}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInitAndList(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "12 collections created")

	out, err = h.run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "0 collections created")

	out, err = h.run(t, "collections", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "users")
	assert.Contains(t, out, "notifications")
}

func TestSeedThenReconcile(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "alice@angple.local")

	// a second run reuses the accounts
	_, err = h.run(t, "seed")
	require.NoError(t, err)

	out, err = h.run(t, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "0 counter(s) inconsistent")
}

func TestReconcile_ReportsAndFixes(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.MkdirAll(h.dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.dataDir, "posts.json"),
		[]byte(`[{"id":"p1","comment_count":2,"created_at":"2026-01-01T00:00:00Z","updated_at":"2026-01-01T00:00:00Z"}]`), 0o644))

	out, err := h.run(t, "reconcile")
	assert.Error(t, err)
	assert.Contains(t, out, "mismatch posts/p1 comment_count: stored=2 actual=0")

	out, err = h.run(t, "reconcile", "--fix", "--purge")
	require.NoError(t, err)
	assert.Contains(t, out, "1 counter(s) repaired")
	assert.Contains(t, out, "purged 0 conversation(s)")

	_, err = h.run(t, "reconcile")
	assert.NoError(t, err)
}

func TestBackup(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "init")
	require.NoError(t, err)

	_, err = h.run(t, "backup")
	assert.Error(t, err)

	out, err := h.run(t, "backup", "users", "posts")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "\n"))

	_, err = h.run(t, "backup", "--all")
	require.NoError(t, err)
	entries, err := os.ReadDir(h.backups)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 12)
}

func TestCollectionsClearAndDrop(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "seed")
	require.NoError(t, err)

	out, err := h.run(t, "collections", "clear", "messages")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared messages")

	_, err = h.run(t, "collections", "drop", "messages")
	assert.ErrorContains(t, err, "--yes")

	_, err = h.run(t, "collections", "drop", "--yes", "messages")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(h.dataDir, "messages.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestSeed_RefusedOutsideDevelopment(t *testing.T) {
	h := newHarness(t)
	t.Setenv("APP_ENV", "prod")
	_, err := h.run(t, "seed")
	assert.ErrorContains(t, err, "development")
}
