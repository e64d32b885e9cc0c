package storage

import (
	"context"
	"errors"
	"time"

	"github.com/damoang/angple-store/internal/common"
	"golang.org/x/sync/semaphore"
)

func (s *Store) semaphore(name string) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.locks[name]
	if !ok {
		sem = semaphore.NewWeighted(1)
		s.locks[name] = sem
	}
	return sem
}

// lock takes the collection lock, waiting at most LockTimeout
func (s *Store) lock(ctx context.Context, name string) error {
	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
	defer cancel()

	err := s.semaphore(name).Acquire(waitCtx, 1)
	lockWait.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		s.log.Warn().
			Str("collection", name).
			Dur("timeout", s.opts.LockTimeout).
			Msg("collection lock wait timed out")
		return &common.StorageError{Op: "lock", Collection: name, Err: ErrLockTimeout}
	}
	return err
}

func (s *Store) unlock(name string) {
	s.semaphore(name).Release(1)
}

// lockAll takes the locks of every name in order, releasing what it already
// holds if one of them fails. names must be sorted.
func (s *Store) lockAll(ctx context.Context, names []string) (func(), error) {
	held := make([]string, 0, len(names))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			s.unlock(held[i])
		}
	}
	for _, name := range names {
		if err := s.lock(ctx, name); err != nil {
			release()
			return nil, err
		}
		held = append(held, name)
	}
	return release, nil
}
