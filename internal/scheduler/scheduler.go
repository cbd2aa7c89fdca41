// Package scheduler runs Plubot's periodic maintenance.
//
// Jobs are registered with cron expressions (5-field or descriptors such as
// "@hourly") and run on a robfig/cron scheduler with panic recovery.
package scheduler

import (
	"github.com/robfig/cron/v3"
)

// DefaultMaintenanceSpec is used when MAINTENANCE_CRON is unset.
const DefaultMaintenanceSpec = "@hourly"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
