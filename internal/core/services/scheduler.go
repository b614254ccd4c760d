package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driving"
	"github.com/custodia-labs/ocrbox/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// RetentionFunc removes expired audit entries and returns how many it removed.
type RetentionFunc func(ctx context.Context) (int, error)

// Scheduler runs the remote poll and audit retention tasks on their
// intervals. Remote polling runs as one task per account, so a slow
// account never delays the next cycle of another. A task never overlaps
// itself.
type Scheduler struct {
	config    domain.SchedulerConfig
	store     driven.SchedulerStore
	sync      driving.Synchronizer
	retention RetentionFunc
	onFatal   func(error)

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	inTask  map[string]bool
	wg      sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithRetention sets the audit retention task body.
func WithRetention(fn RetentionFunc) SchedulerOption {
	return func(s *Scheduler) { s.retention = fn }
}

// WithFatalHandler is called when a task hits a storage failure.
func WithFatalHandler(fn func(error)) SchedulerOption {
	return func(s *Scheduler) { s.onFatal = fn }
}

// NewScheduler creates a scheduler with configuration.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	synchronizer driving.Synchronizer,
	opts ...SchedulerOption,
) *Scheduler {
	s := &Scheduler{
		config: config,
		store:  store,
		sync:   synchronizer,
		inTask: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopped = false
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if err := s.initialiseTasks(ctx); err != nil {
		logger.Warn("scheduler: failed to initialise tasks: %v", err)
	}

	return s.run(ctx)
}

// Stop prevents new runs and waits for in-flight ones to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	s.stopped = true
	if !s.running {
		s.mu.Unlock()
		s.wg.Wait()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// initialiseTasks ensures all configured tasks exist in the store.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	var errs []error
	for _, t := range domain.BuiltinTasks {
		// Disabled tasks are saved too, so state left by an earlier run with
		// other settings does not keep them running.
		if err := s.ensureTask(ctx, t.ID, t.Name, s.config.GetTaskConfig(t.ID)); err != nil {
			errs = append(errs, err)
		}
	}
	if !s.config.GetTaskConfig(domain.TaskIDRemotePoll).Enabled || s.sync == nil {
		if err := s.pruneAccountTasks(ctx, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ensureTask creates or updates a task in the store. New tasks are due
// immediately so the first poll happens at startup.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now()
	if task == nil {
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  now,
		}
	} else {
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			task.NextRun = now
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	s.checkAndRunDueTasks(ctx)

	tick := s.config.Tick
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Warn("scheduler: failed to list tasks: %v", err)
		return
	}

	now := time.Now()
	for i := range tasks {
		if task := tasks[i]; task.Due(now) {
			s.runTask(ctx, &task)
		}
	}
}

// runTask executes a single task in the background unless the scheduler is
// stopping or the task is still running from a previous tick.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	s.mu.Lock()
	if s.stopped || s.inTask[task.ID] {
		s.mu.Unlock()
		return
	}
	s.inTask[task.ID] = true
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.inTask, task.ID)
			s.mu.Unlock()
			s.wg.Done()
		}()

		result := &domain.TaskResult{
			TaskID:    task.ID,
			StartedAt: time.Now(),
		}

		var err error
		switch task.ID {
		case domain.TaskIDRemotePoll:
			result.ItemsProcessed, err = s.reconcileAccountTasks(ctx)
		case domain.TaskIDAuditRetention:
			result.ItemsProcessed, err = s.runRetention(ctx)
		default:
			accountID, ok := domain.PollTaskAccount(task.ID)
			if !ok {
				logger.Warn("scheduler: unknown task ID: %s", task.ID)
				return
			}
			result.ItemsProcessed, err = s.runAccountPoll(ctx, accountID)
		}

		result.EndedAt = time.Now()
		result.Success = err == nil
		if err != nil {
			result.Error = err.Error()
		}
		task.Reschedule(result)
		logger.Debug("scheduler: %s finished in %s (items=%d)", task.ID, result.Duration(), result.ItemsProcessed)

		// Bookkeeping outlives a shutdown so the next start resumes correctly.
		saveCtx := context.WithoutCancel(ctx)
		if saveErr := s.store.SaveTask(saveCtx, task); saveErr != nil {
			logger.Warn("scheduler: failed to save task %s: %v", task.ID, saveErr)
		}
		if recordErr := s.store.RecordResult(saveCtx, result); recordErr != nil {
			logger.Warn("scheduler: failed to record result for %s: %v", task.ID, recordErr)
		}
		if pruneErr := s.store.PruneHistory(saveCtx, 100); pruneErr != nil {
			logger.Warn("scheduler: failed to prune history: %v", pruneErr)
		}

		if errors.Is(err, domain.ErrStorageUnavailable) && s.onFatal != nil {
			s.onFatal(err)
		}
	}()
}

// reconcileAccountTasks keeps exactly one poll task per authorized account
// and returns the number of accounts.
func (s *Scheduler) reconcileAccountTasks(ctx context.Context) (int, error) {
	if s.sync == nil {
		return 0, nil
	}
	accounts, err := s.sync.Accounts(ctx)
	if err != nil {
		return 0, err
	}

	cfg := s.config.GetTaskConfig(domain.TaskIDRemotePoll)
	keep := make(map[string]bool, len(accounts))
	var errs []error
	for _, id := range accounts {
		taskID := domain.AccountPollTaskID(id)
		keep[taskID] = true
		if err := s.ensureTask(ctx, taskID, "Poll "+id, cfg); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.pruneAccountTasks(ctx, keep); err != nil {
		errs = append(errs, err)
	}
	return len(accounts), errors.Join(errs...)
}

// pruneAccountTasks deletes per-account poll tasks not in keep.
func (s *Scheduler) pruneAccountTasks(ctx context.Context, keep map[string]bool) error {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, t := range tasks {
		if _, ok := domain.PollTaskAccount(t.ID); ok && !keep[t.ID] {
			if err := s.store.DeleteTask(ctx, t.ID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// runAccountPoll polls one account and returns the number of processed items.
func (s *Scheduler) runAccountPoll(ctx context.Context, accountID string) (int, error) {
	if s.sync == nil {
		return 0, nil
	}
	r := s.sync.PollAccount(ctx, accountID)
	switch {
	case r.Err == nil, errors.Is(r.Err, context.Canceled):
	case errors.Is(r.Err, domain.ErrStorageUnavailable):
		return r.Processed, fmt.Errorf("account %s: %w", accountID, r.Err)
	default:
		logger.Warn("poll for account %s failed, retrying next cycle: %v", accountID, r.Err)
	}
	return r.Processed, r.Err
}

func (s *Scheduler) runRetention(ctx context.Context) (int, error) {
	if s.retention == nil {
		return 0, nil
	}
	return s.retention(ctx)
}
