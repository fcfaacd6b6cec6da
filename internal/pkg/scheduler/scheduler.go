// Package scheduler runs the periodic maintenance jobs of the application.
package scheduler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/env"
)

// TrialReconciler downgrades users whose trial ended without payment.
type TrialReconciler interface {
	ReconcileExpiredTrials(ctx context.Context) (int, error)
}

// OverdueMarker flags unpaid invoices past their due date.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context) (int64, error)
}

// Schedules are cron expressions evaluated in UTC.
type Schedules struct {
	Trials    string
	Overdue   string
	Reminders string
}

// DefaultSchedules returns the schedules from the environment.
func DefaultSchedules() Schedules {
	return Schedules{
		Trials:    env.GetEnv("CRON_TRIALS", "@hourly"),
		Overdue:   env.GetEnv("CRON_OVERDUE", "10 2 * * *"),
		Reminders: env.GetEnv("CRON_REMINDERS", "0 8 * * *"),
	}
}

type Scheduler struct {
	cron      *cron.Cron
	trials    TrialReconciler
	overdue   OverdueMarker
	reminders *Reminders
	timeout   time.Duration
}

func New(trials TrialReconciler, overdue OverdueMarker, reminders *Reminders) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		trials:    trials,
		overdue:   overdue,
		reminders: reminders,
		timeout:   5 * time.Minute,
	}
}

// Register adds every configured job. Nil collaborators are skipped.
func (s *Scheduler) Register(sc Schedules) error {
	if s.trials != nil {
		if _, err := s.cron.AddFunc(sc.Trials, s.RunTrials); err != nil {
			return err
		}
	}
	if s.overdue != nil {
		if _, err := s.cron.AddFunc(sc.Overdue, s.RunOverdue); err != nil {
			return err
		}
	}
	if s.reminders != nil {
		if _, err := s.cron.AddFunc(sc.Reminders, s.RunReminders); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Infof("[Scheduler] Started with %d jobs", s.Entries())
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info("[Scheduler] Stopped")
}

func (s *Scheduler) RunTrials() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.trials.ReconcileExpiredTrials(ctx)
	if err != nil {
		log.Errorf("[Scheduler] Trial reconciliation failed: %v", err)
		return
	}
	if n > 0 {
		log.Infof("[Scheduler] Reconciled %d expired trials", n)
	}
}

func (s *Scheduler) RunOverdue() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.overdue.MarkOverdue(ctx); err != nil {
		log.Errorf("[Scheduler] Overdue sweep failed: %v", err)
	}
}

func (s *Scheduler) RunReminders() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.reminders.Run(ctx); err != nil {
		log.Errorf("[Scheduler] Declaration reminders failed: %v", err)
	}
}
