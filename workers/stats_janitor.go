// workers/stats_janitor.go
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"data-bounty-system/storage"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// minRetention keeps today's and yesterday's rows out of reach of the janitor.
const minRetention = 48 * time.Hour

// StatsJanitor periodically deletes daily-stats rows nobody has touched for
// the retention window. A missing row reads as a zeroed record, so pruning
// never changes what GetStats returns.
type StatsJanitor struct {
	pruner    storage.StatsPruner
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	log       *zap.Logger

	sched    gocron.Scheduler
	stopOnce sync.Once
	stopErr  error
}

func NewStatsJanitor(pruner storage.StatsPruner, retention, interval time.Duration, log *zap.Logger) *StatsJanitor {
	if log == nil {
		log = zap.NewNop()
	}
	if retention < minRetention {
		retention = minRetention
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &StatsJanitor{
		pruner:    pruner,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		log:       log,
	}
}

// RunOnce prunes rows idle since now minus the retention window.
func (j *StatsJanitor) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	n, err := j.pruner.PruneDailyStats(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune daily stats: %w", err)
	}
	return n, nil
}

// Start schedules RunOnce every interval until Stop or ctx is done.
func (j *StatsJanitor) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(func() {
			if _, err := j.RunOnce(ctx); err != nil {
				j.log.Warn("stats janitor run failed", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule stats janitor: %w", err)
	}

	j.sched = sched
	sched.Start()
	j.log.Info("stats janitor started",
		zap.Duration("interval", j.interval),
		zap.Duration("retention", j.retention),
	)

	go func() {
		<-ctx.Done()
		_ = j.Stop()
	}()
	return nil
}

func (j *StatsJanitor) Stop() error {
	if j.sched == nil {
		return nil
	}
	j.stopOnce.Do(func() {
		j.stopErr = j.sched.Shutdown()
	})
	return j.stopErr
}
