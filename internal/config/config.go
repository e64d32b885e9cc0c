package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/damoang/angple-store/internal/scheduler"
	"github.com/damoang/angple-store/internal/storage"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Security  SecurityConfig  `yaml:"security"`
	Ops       OpsConfig       `yaml:"ops"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// AppConfig general settings
type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
}

// StorageConfig collection storage settings
type StorageConfig struct {
	DataDir      string        `yaml:"data_dir"`
	BackupDir    string        `yaml:"backup_dir"`
	LockTimeout  time.Duration `yaml:"lock_timeout"`
	StrictDecode bool          `yaml:"strict_decode"`
	FileMode     string        `yaml:"file_mode"`
}

// RedisConfig optional account cache
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// SecurityConfig password hashing
type SecurityConfig struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

// OpsConfig admin HTTP surface
type OpsConfig struct {
	Addr      string  `yaml:"addr"`
	APIKey    string  `yaml:"api_key"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// SchedulerConfig maintenance task schedules. An empty schedule disables the task.
type SchedulerConfig struct {
	Resolution        time.Duration `yaml:"resolution"`
	ReconcileCron     string        `yaml:"reconcile_cron"`
	PurgeCron         string        `yaml:"purge_cron"`
	BackupCron        string        `yaml:"backup_cron"`
	BackupCollections []string      `yaml:"backup_collections"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		App: AppConfig{Env: "local", LogLevel: "info"},
		Storage: StorageConfig{
			DataDir:     "data",
			BackupDir:   "data/backups",
			LockTimeout: storage.DefaultLockTimeout,
			FileMode:    "0644",
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			PoolSize: 10,
		},
		Security: SecurityConfig{BcryptCost: 10},
		Ops: OpsConfig{
			Addr:      ":8090",
			RateLimit: 5,
			RateBurst: 10,
		},
		Scheduler: SchedulerConfig{
			Resolution:    scheduler.DefaultResolution,
			ReconcileCron: "*/30 * * * *",
			PurgeCron:     "15 4 * * *",
			BackupCron:    "0 3 * * *",
		},
	}
}

// GetConfigPath returns config file path for an APP_ENV value
func GetConfigPath(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("APP_ENV", &cfg.App.Env)
	str("LOG_LEVEL", &cfg.App.LogLevel)
	str("STORE_DATA_DIR", &cfg.Storage.DataDir)
	str("STORE_BACKUP_DIR", &cfg.Storage.BackupDir)
	str("REDIS_HOST", &cfg.Redis.Host)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("OPS_ADDR", &cfg.Ops.Addr)
	str("OPS_API_KEY", &cfg.Ops.APIKey)

	if v := os.Getenv("STORE_LOCK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STORE_LOCK_TIMEOUT: %w", err)
		}
		cfg.Storage.LockTimeout = d
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_PORT: %w", err)
		}
		cfg.Redis.Port = port
	}
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REDIS_ENABLED: %w", err)
		}
		cfg.Redis.Enabled = enabled
	}
	return nil
}

// Validate checks the configuration for values the application cannot run with
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		errs = append(errs, errors.New("storage.data_dir is required"))
	}
	if c.Storage.LockTimeout <= 0 {
		errs = append(errs, errors.New("storage.lock_timeout must be positive"))
	}
	if _, err := c.Storage.Mode(); err != nil {
		errs = append(errs, fmt.Errorf("storage.file_mode: %w", err))
	}
	if c.Security.BcryptCost < 4 || c.Security.BcryptCost > 31 {
		errs = append(errs, errors.New("security.bcrypt_cost must be between 4 and 31"))
	}
	if c.Ops.RateLimit < 0 || c.Ops.RateBurst < 0 {
		errs = append(errs, errors.New("ops.rate_limit and ops.rate_burst must not be negative"))
	}
	for key, expr := range map[string]string{
		"scheduler.reconcile_cron": c.Scheduler.ReconcileCron,
		"scheduler.purge_cron":     c.Scheduler.PurgeCron,
		"scheduler.backup_cron":    c.Scheduler.BackupCron,
	} {
		if expr != "" && !scheduler.ValidCron(expr) {
			errs = append(errs, fmt.Errorf("%s: invalid cron expression %q", key, expr))
		}
	}
	for _, name := range c.Scheduler.BackupCollections {
		if !storage.ValidName(name) {
			errs = append(errs, fmt.Errorf("scheduler.backup_collections: invalid collection %q", name))
		}
	}
	return errors.Join(errs...)
}

// Mode parses the octal file mode
func (s StorageConfig) Mode() (fs.FileMode, error) {
	if s.FileMode == "" {
		return storage.DefaultFileMode, nil
	}
	m, err := strconv.ParseUint(s.FileMode, 8, 32)
	if err != nil {
		return 0, err
	}
	return fs.FileMode(m), nil
}

// IsDevelopment reports whether the app runs in a local/dev environment
func (c *Config) IsDevelopment() bool {
	switch c.App.Env {
	case "local", "dev", "development":
		return true
	}
	return false
}

// LogResolved logs the effective configuration without secrets
func LogResolved(cfg *Config, log zerolog.Logger) {
	log.Info().
		Str("env", cfg.App.Env).
		Str("data_dir", cfg.Storage.DataDir).
		Str("backup_dir", cfg.Storage.BackupDir).
		Dur("lock_timeout", cfg.Storage.LockTimeout).
		Bool("strict_decode", cfg.Storage.StrictDecode).
		Bool("redis", cfg.Redis.Enabled).
		Str("ops_addr", cfg.Ops.Addr).
		Bool("ops_api_key_set", cfg.Ops.APIKey != "").
		Msg("configuration resolved")
}
