// Package scheduler provides cron-based scheduling for Aide.
//
// Its single production job is the daily check-in sweep, but any task can
// be registered with a cron expression.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultCheckinSchedule fires the check-in sweep at 10:00 every day.
const DefaultCheckinSchedule = "0 10 * * *"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	if _, err := s.cron.AddFunc(expr, task); err != nil {
		slog.Error("Scheduler AddJob failed", "error", err, "expr", expr)
		return err
	}
	slog.Debug("Scheduler job registered", "expr", expr)
	return nil
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	slog.Debug("Scheduler stopped")
}
