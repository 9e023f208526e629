package cron

import (
	"context"
	"log/slog"
	"time"
)

// StateCache is the subset of the session state cache needed by cron jobs.
// Defined here to avoid a dependency on the memory package.
type StateCache interface {
	Prune(maxIdle time.Duration) int
	Len() int
}

// StateCleanupJob evicts cached session state that has been idle longer
// than MaxIdle. The cache is derived data, so eviction is always safe.
type StateCleanupJob struct {
	Cache        StateCache
	MaxIdle      time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

// Compile-time interface check.
var _ Job = (*StateCleanupJob)(nil)

// Name implements Job.
func (j *StateCleanupJob) Name() string {
	return "state_cleanup"
}

// Schedule implements Job.
func (j *StateCleanupJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run prunes idle session state.
func (j *StateCleanupJob) Run(_ context.Context) error {
	pruned := j.Cache.Prune(j.MaxIdle)
	if pruned > 0 {
		j.Logger.Info("cron: pruned idle session state", "count", pruned, "remaining", j.Cache.Len())
	}
	return nil
}
