// Package jobs runs the server's periodic maintenance tasks on a cron
// scheduler.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/robfig/cron/v3"
)

// Task is one periodic job. It runs every IntervalAmount units of Interval,
// where Interval is a second, a minute or an hour.
type Task struct {
	Name           string
	Interval       time.Duration
	IntervalAmount int
	Enabled        bool
	TaskFn         func(ctx context.Context)
}

func (task Task) cronString() (string, error) {
	var intervalChar rune
	switch task.Interval {
	case time.Second:
		intervalChar = 's'
	case time.Minute:
		intervalChar = 'm'
	case time.Hour:
		intervalChar = 'h'
	default:
		return "", fmt.Errorf("unsupported cron interval %s for task %q", task.Interval, task.Name)
	}
	if task.IntervalAmount < 1 {
		return "", fmt.Errorf("task %q needs a positive interval amount", task.Name)
	}
	return fmt.Sprintf("@every %d%c", task.IntervalAmount, intervalChar), nil
}

// EveryDuration picks the coarsest whole unit that expresses d.
func EveryDuration(d time.Duration) (time.Duration, int) {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return time.Hour, int(d / time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		return time.Minute, int(d / time.Minute)
	default:
		secs := int(d / time.Second)
		if secs < 1 {
			secs = 1
		}
		return time.Second, secs
	}
}

// Scheduler wraps a cron instance bound to a logger.
type Scheduler struct {
	cron   *cron.Cron
	logger logging.Logger
}

func NewScheduler(logger logging.Logger) *Scheduler {
	return &Scheduler{cron: cron.New(), logger: logger.With("module", "jobs")}
}

// Add registers enabled tasks. Each run gets ctx so tasks can log with it.
func (s *Scheduler) Add(ctx context.Context, tasks ...Task) error {
	for _, task := range tasks {
		if !task.Enabled {
			continue
		}
		spec, err := task.cronString()
		if err != nil {
			return err
		}
		if _, err := s.cron.AddFunc(spec, func() {
			s.logger.Debug(ctx, "running task", "task", task.Name)
			task.TaskFn(ctx)
		}); err != nil {
			return fmt.Errorf("add task %q: %w", task.Name, err)
		}
		s.logger.Info(ctx, "added cron task", "task", task.Name, "spec", spec)
	}
	return nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running tasks to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}

// Len reports the number of registered tasks.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}
