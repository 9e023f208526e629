package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// entry pairs a registered job with the mutex that keeps its ticks from
// overlapping.
type entry struct {
	job  Job
	lock sync.Mutex
}

// Scheduler runs registered jobs on standard 5-field cron expressions. A
// tick that fires while the previous run of the same job is still in
// flight is skipped rather than queued.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]*entry
	order   []string
	logger  *slog.Logger
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. Register jobs before calling Start.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// RegisterJob adds a job. Job names must be unique.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	s.entries[name] = &entry{job: j}
	s.order = append(s.order, name)
	return nil
}

// Start parses every schedule and begins ticking. An invalid expression
// fails the whole start so misconfiguration surfaces at boot, not at the
// first missed tick.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	s.cron = cron.New(cron.WithParser(parser))

	for _, name := range s.order {
		e := s.entries[name]
		if _, err := s.cron.AddFunc(e.job.Schedule(), func() { s.tick(ctx, e) }); err != nil {
			cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", e.job.Name(), err)
		}
	}

	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.order))
	return nil
}

// tick runs one firing of a job, skipping if the previous firing is still
// running. TryLock is atomic, so there is no race between check and acquire.
func (s *Scheduler) tick(ctx context.Context, e *entry) {
	if !e.lock.TryLock() {
		s.logger.Warn("cron: job still running, skipping tick", "job", e.job.Name())
		return
	}
	defer e.lock.Unlock()

	s.logger.Debug("cron: job started", "job", e.job.Name())
	if err := e.job.Run(ctx); err != nil {
		s.logger.Error("cron: job failed", "job", e.job.Name(), "error", err)
		return
	}
	s.logger.Debug("cron: job completed", "job", e.job.Name())
}

// Stop cancels the job context and waits for in-flight runs to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}
