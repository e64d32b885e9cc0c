// Package app wires configuration, storage and services into one runnable unit.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/damoang/angple-store/internal/config"
	"github.com/damoang/angple-store/internal/middleware"
	"github.com/damoang/angple-store/internal/ops"
	"github.com/damoang/angple-store/internal/scheduler"
	"github.com/damoang/angple-store/internal/service"
	"github.com/damoang/angple-store/internal/storage"
	pkgcache "github.com/damoang/angple-store/pkg/cache"
	pkgredis "github.com/damoang/angple-store/pkg/redis"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Task names registered by RegisterTasks
const (
	TaskReconcile = "reconcile"
	TaskPurge     = "purge-deleted"
	TaskBackup    = "backup"
)

// App holds the wired services
type App struct {
	Config *config.Config
	Store  *storage.Store
	Cache  pkgcache.Service

	Accounts      service.AccountService
	Content       service.ContentService
	Messaging     service.MessagingService
	Notifications service.NotificationService
	Reconciler    service.ReconcileService

	redis *redis.Client
	log   zerolog.Logger
}

// New opens the store and builds every service. A Redis failure is logged
// and the app continues without the account cache.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	mode, err := cfg.Storage.Mode()
	if err != nil {
		return nil, fmt.Errorf("storage file mode: %w", err)
	}
	store := storage.Open(cfg.Storage.DataDir, storage.Options{
		LockTimeout:  cfg.Storage.LockTimeout,
		StrictDecode: cfg.Storage.StrictDecode,
		FileMode:     mode,
		Logger:       log,
	})
	if err := store.Init(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Store: store, log: log}

	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(pkgredis.Options{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without cache")
		} else {
			log.Info().Str("host", cfg.Redis.Host).Int("port", cfg.Redis.Port).Msg("connected to Redis")
			a.redis = client
		}
	}
	a.Cache = pkgcache.NewService(a.redis)

	a.Notifications = service.NewNotificationService(store, log)
	a.Accounts = service.NewAccountService(store, a.Cache, cfg.Security.BcryptCost, log)
	a.Content = service.NewContentService(store, a.Notifications, log)
	a.Messaging = service.NewMessagingService(store, a.Notifications, log)
	a.Reconciler = service.NewReconcileService(store, log)
	return a, nil
}

// Close releases external connections
func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

// RegisterTasks adds the maintenance tasks with a non-empty schedule to s
func (a *App) RegisterTasks(s *scheduler.Scheduler) error {
	sc := a.Config.Scheduler
	tasks := []struct {
		name string
		expr string
		fn   scheduler.TaskFunc
	}{
		{TaskReconcile, sc.ReconcileCron, func(ctx context.Context) error {
			_, err := a.Reconciler.Reconcile(ctx)
			return err
		}},
		{TaskPurge, sc.PurgeCron, func(ctx context.Context) error {
			_, err := a.Reconciler.PurgeDeleted(ctx)
			return err
		}},
		{TaskBackup, sc.BackupCron, func(ctx context.Context) error {
			_, err := a.BackupAll(ctx, sc.BackupCollections)
			return err
		}},
	}
	for _, t := range tasks {
		if t.expr == "" {
			continue
		}
		if err := s.Cron(t.name, t.expr, t.fn); err != nil {
			return fmt.Errorf("register %s: %w", t.name, err)
		}
	}
	return nil
}

// BackupAll backs up the named collections, or every collection on disk when
// names is empty. It keeps going past failures and returns them joined.
func (a *App) BackupAll(ctx context.Context, names []string) ([]storage.BackupInfo, error) {
	if len(names) == 0 {
		var err error
		if names, err = a.Store.ListCollections(); err != nil {
			return nil, err
		}
	}

	infos := make([]storage.BackupInfo, 0, len(names))
	var errs []error
	for _, name := range names {
		info, err := a.Store.Backup(ctx, name, a.Config.Storage.BackupDir)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		infos = append(infos, info)
	}
	return infos, errors.Join(errs...)
}

// Serve runs the scheduler and the admin HTTP server until ctx is cancelled
func (a *App) Serve(ctx context.Context) error {
	sched := scheduler.New(a.Config.Scheduler.Resolution, a.log)
	if err := a.RegisterTasks(sched); err != nil {
		return err
	}
	sched.Start(ctx)
	defer sched.Stop()

	h := ops.NewHandler(a.Store, a.Reconciler, sched, a.Cache, a.Config.Storage.BackupDir)
	router := ops.NewRouter(h, ops.RouterConfig{
		APIKey: a.Config.Ops.APIKey,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: a.Config.Ops.RateLimit,
			Burst:             a.Config.Ops.RateBurst,
		},
	})
	if a.Config.Ops.APIKey == "" {
		a.log.Warn().Msg("ops.api_key is empty, admin endpoints are disabled")
	}

	start := time.Now()
	err := ops.Serve(ctx, a.Config.Ops.Addr, router)
	a.log.Info().Dur("uptime", time.Since(start)).Msg("serve finished")
	return err
}
