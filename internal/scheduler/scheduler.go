// Package scheduler runs periodic upstream maintenance.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/vowser/controlhub/internal/logging"
	"github.com/vowser/controlhub/internal/types"
)

// Cleaner is the upstream operation the scheduler drives.
type Cleaner interface {
	IsConnected() bool
	CleanupPaths(ctx context.Context) (*types.CleanupResponse, error)
}

// Scheduler issues cleanup_paths on a cron schedule.
type Scheduler struct {
	cron     *cronlib.Cron
	cleaner  Cleaner
	schedule string
	timeout  time.Duration

	runs    atomic.Int64
	skipped atomic.Int64
}

// Accepts standard five-field specs, an optional leading seconds field,
// and descriptors such as @hourly or @every 10m.
var parser = cronlib.NewParser(
	cronlib.SecondOptional | cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// New validates schedule and prepares the job. timeout bounds each call.
func New(cleaner Cleaner, schedule string, timeout time.Duration) (*Scheduler, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &Scheduler{
		cron:     cronlib.New(cronlib.WithParser(parser)),
		cleaner:  cleaner,
		schedule: schedule,
		timeout:  timeout,
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunCleanup(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for a
// running job to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	logging.Infof("[Scheduler] cleanup scheduled: %s", s.schedule)
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	logging.Info("[Scheduler] stopped")
	return nil
}

// RunCleanup performs one cleanup pass, skipping it while the link is down.
func (s *Scheduler) RunCleanup(ctx context.Context) {
	if !s.cleaner.IsConnected() {
		s.skipped.Add(1)
		logging.Warn("[Scheduler] cleanup skipped: upstream not connected")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.runs.Add(1)
	resp, err := s.cleaner.CleanupPaths(ctx)
	if err != nil {
		logging.Errorf("[Scheduler] cleanup failed: %v", err)
		return
	}
	logging.Infof("[Scheduler] cleanup done: status=%s deleted=%d", resp.Status, resp.Data.DeletedRelations)
}

// Runs reports how many cleanup calls were issued.
func (s *Scheduler) Runs() int64 { return s.runs.Load() }

// Skipped reports how many passes were skipped while disconnected.
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }
