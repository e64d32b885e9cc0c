// Package scheduler runs periodic maintenance tasks in-process.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"
)

// DefaultResolution is how often due tasks are checked
const DefaultResolution = 15 * time.Second

var (
	ErrTaskNotFound  = errors.New("scheduled task not found")
	ErrDuplicateTask = errors.New("scheduled task already registered")
	ErrInvalidCron   = errors.New("invalid cron expression")
)

// TaskFunc is the body of a scheduled task
type TaskFunc func(ctx context.Context) error

// task 등록된 주기적 작업
type task struct {
	name     string
	interval time.Duration
	cron     string
	fn       TaskFunc

	lastRun   time.Time
	nextRun   time.Time
	runCount  int64
	lastError error
	lastTook  time.Duration
}

func (t *task) next(after time.Time) (time.Time, error) {
	if t.cron != "" {
		return gronx.NextTickAfter(t.cron, after, false)
	}
	return after.Add(t.interval), nil
}

// Scheduler in-process task scheduler
type Scheduler struct {
	mu         sync.RWMutex
	tasks      []*task
	resolution time.Duration
	log        zerolog.Logger

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler checking for due tasks every resolution
func New(resolution time.Duration, log zerolog.Logger) *Scheduler {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &Scheduler{
		resolution: resolution,
		log:        log.With().Str("component", "scheduler").Logger(),
	}
}

// Every registers a task that runs at a fixed interval
func (s *Scheduler) Every(name string, interval time.Duration, fn TaskFunc) error {
	if interval <= 0 {
		return fmt.Errorf("task %q: interval must be positive", name)
	}
	return s.add(&task{name: name, interval: interval, fn: fn})
}

// Cron registers a task driven by a five-field cron expression
func (s *Scheduler) Cron(name, expr string, fn TaskFunc) error {
	if !ValidCron(expr) {
		return fmt.Errorf("task %q: %w: %q", name, ErrInvalidCron, expr)
	}
	return s.add(&task{name: name, cron: expr, fn: fn})
}

// ValidCron reports whether expr is a valid cron expression
func ValidCron(expr string) bool {
	return expr != "" && gronx.New().IsValid(expr)
}

func (s *Scheduler) add(t *task) error {
	next, err := t.next(time.Now())
	if err != nil {
		return fmt.Errorf("task %q: %w", t.name, err)
	}
	t.nextRun = next

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tasks {
		if existing.name == t.name {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, t.name)
		}
	}
	s.tasks = append(s.tasks, t)

	ev := s.log.Info().Str("task", t.name).Time("next_run", t.nextRun)
	if t.cron != "" {
		ev = ev.Str("cron", t.cron)
	} else {
		ev = ev.Dur("interval", t.interval)
	}
	ev.Msg("scheduled task registered")
	return nil
}

// Start runs the scheduler loop until ctx is done or Stop is called
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.resolution)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.tick(ctx, now)
			}
		}
	}()
	s.log.Info().Dur("resolution", s.resolution).Msg("scheduler started")
}

// Stop ends the loop and waits for a running task to finish
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

// tick runs every task that is due at now
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.RLock()
	due := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if !now.Before(t.nextRun) {
			due = append(due, t)
		}
	}
	s.mu.RUnlock()

	for _, t := range due {
		if ctx.Err() != nil {
			return
		}
		s.run(ctx, t, now)
	}
}

// RunNow runs a task immediately, outside its schedule
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	var found *task
	for _, t := range s.tasks {
		if t.name == name {
			found = t
			break
		}
	}
	s.mu.RUnlock()

	if found == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return s.run(ctx, found, time.Now())
}

func (s *Scheduler) run(ctx context.Context, t *task, now time.Time) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.log.Debug().Str("task", t.name).Msg("running scheduled task")
	start := time.Now()
	err := t.fn(ctx)
	took := time.Since(start)

	if err != nil {
		s.log.Error().Err(err).Str("task", t.name).Dur("took", took).Msg("scheduled task failed")
	}

	next, nerr := t.next(now)
	s.mu.Lock()
	t.lastRun = now
	t.lastError = err
	t.lastTook = took
	t.runCount++
	if nerr == nil {
		t.nextRun = next
	}
	s.mu.Unlock()
	return err
}

// TaskInfo 작업 정보 (JSON 응답용)
type TaskInfo struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	LastRun   time.Time `json:"last_run"`
	NextRun   time.Time `json:"next_run"`
	RunCount  int64     `json:"run_count"`
	LastTook  string    `json:"last_took,omitempty"`
	LastError *string   `json:"last_error,omitempty"`
}

// Tasks returns a snapshot of the registered tasks
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		info := TaskInfo{
			Name:     t.name,
			Schedule: t.cron,
			LastRun:  t.lastRun,
			NextRun:  t.nextRun,
			RunCount: t.runCount,
		}
		if t.cron == "" {
			info.Schedule = "@every " + t.interval.String()
		}
		if t.runCount > 0 {
			info.LastTook = t.lastTook.String()
		}
		if t.lastError != nil {
			msg := t.lastError.Error()
			info.LastError = &msg
		}
		result = append(result, info)
	}
	return result
}
