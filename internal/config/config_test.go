package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.Equal(t, 5*time.Second, cfg.Storage.LockTimeout)
	assert.Equal(t, 10, cfg.Security.BcryptCost)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
app:
  env: staging
storage:
  data_dir: /var/lib/store
  lock_timeout: 250ms
  strict_decode: true
  file_mode: "0600"
redis:
  enabled: true
  port: 6380
scheduler:
  backup_cron: "30 2 * * *"
  backup_collections: [users, posts]
`)
	t.Setenv("APP_ENV", "")
	t.Setenv("STORE_BACKUP_DIR", "/backups")
	t.Setenv("OPS_API_KEY", "k")
	t.Setenv("REDIS_PORT", "7000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.App.Env)
	assert.Equal(t, "/var/lib/store", cfg.Storage.DataDir)
	assert.Equal(t, "/backups", cfg.Storage.BackupDir)
	assert.Equal(t, 250*time.Millisecond, cfg.Storage.LockTimeout)
	assert.True(t, cfg.Storage.StrictDecode)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 7000, cfg.Redis.Port)
	assert.Equal(t, "k", cfg.Ops.APIKey)
	assert.Equal(t, []string{"users", "posts"}, cfg.Scheduler.BackupCollections)

	mode, err := cfg.Storage.Mode()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), mode)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad cron", "scheduler:\n  reconcile_cron: \"every hour\"\n"},
		{"bad collection", "scheduler:\n  backup_collections: [\"../etc\"]\n"},
		{"bad bcrypt cost", "security:\n  bcrypt_cost: 2\n"},
		{"bad mode", "storage:\n  file_mode: \"rw\"\n"},
		{"bad yaml", "storage: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("STORE_LOCK_TIMEOUT", "soon")
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestGetConfigPath(t *testing.T) {
	assert.Equal(t, "configs/config.local.yaml", GetConfigPath(""))
	assert.Equal(t, "configs/config.prod.yaml", GetConfigPath("prod"))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STORE_TEST_A=from-env\nSTORE_TEST_B=from-env\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("STORE_TEST_A=from-local\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.staging"), []byte("STORE_TEST_A=from-staging\nSTORE_TEST_B=from-staging\n"), 0o644))
	t.Setenv("APP_ENV", "staging")

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("STORE_TEST_A")
		_ = os.Unsetenv("STORE_TEST_B")
	})

	loaded := LoadDotEnv()
	assert.Equal(t, []string{".env.local", ".env.staging", ".env"}, loaded)
	assert.Equal(t, "from-local", os.Getenv("STORE_TEST_A"))
	assert.Equal(t, "from-staging", os.Getenv("STORE_TEST_B"))
}
