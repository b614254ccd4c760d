package domain

import (
	"strings"
	"time"
)

// Built-in scheduler tasks.
const (
	TaskIDRemotePoll     = "remote-poll"
	TaskIDAuditRetention = "audit-retention"
)

// accountPollPrefix prefixes the per-account poll tasks the remote-poll
// task maintains.
const accountPollPrefix = TaskIDRemotePoll + "/"

// AccountPollTaskID returns the ID of the poll task for an account.
func AccountPollTaskID(accountID string) string {
	return accountPollPrefix + accountID
}

// PollTaskAccount returns the account a per-account poll task belongs to.
func PollTaskAccount(taskID string) (string, bool) {
	id, ok := strings.CutPrefix(taskID, accountPollPrefix)
	return id, ok && id != ""
}

// BuiltinTasks maps each built-in task ID to its display name, in the
// order the scheduler registers them.
var BuiltinTasks = []struct {
	ID   string
	Name string
}{
	{TaskIDRemotePoll, "Remote Poll"},
	{TaskIDAuditRetention, "Audit Retention"},
}

// ScheduledTask is the persisted state of a recurring task.
type ScheduledTask struct {
	ID       string
	Name     string
	Interval time.Duration
	Enabled  bool

	LastRun     time.Time
	NextRun     time.Time
	LastSuccess time.Time
	// LastError is empty after a successful run.
	LastError string
}

// Due reports whether the task should run at now.
func (t *ScheduledTask) Due(now time.Time) bool {
	return t.Enabled && !t.NextRun.After(now)
}

// Reschedule applies a finished run to the task and computes the next
// run from the end of it, so a slow run never causes back-to-back runs.
func (t *ScheduledTask) Reschedule(r *TaskResult) {
	t.LastRun = r.StartedAt
	t.NextRun = r.EndedAt.Add(t.Interval)
	if r.Success {
		t.LastError = ""
		t.LastSuccess = r.EndedAt
		return
	}
	t.LastError = r.Error
}

// TaskResult is one entry of a task's run history.
type TaskResult struct {
	TaskID    string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	Error     string

	// ItemsProcessed counts files handled by a poll or entries removed
	// by retention.
	ItemsProcessed int
}

// Duration is how long the run took.
func (r TaskResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// SchedulerConfig configures the scheduler loop and its tasks.
type SchedulerConfig struct {
	Enabled bool

	// Tick is how often due tasks are checked.
	Tick time.Duration

	TaskConfigs map[string]TaskConfig
}

// TaskConfig enables a task and sets its interval.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// GetTaskConfig returns the configuration for taskID, or a disabled zero
// value when it is not configured.
func (c *SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	if c.TaskConfigs == nil {
		return TaskConfig{}
	}
	return c.TaskConfigs[taskID]
}

// DefaultSchedulerConfig polls every 30s and prunes the audit log daily.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
		Tick:    5 * time.Second,
		TaskConfigs: map[string]TaskConfig{
			TaskIDRemotePoll:     {Enabled: true, Interval: 30 * time.Second},
			TaskIDAuditRetention: {Enabled: true, Interval: 24 * time.Hour},
		},
	}
}
