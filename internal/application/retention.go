package application

import (
	"context"
	"fmt"
	"time"

	"github.com/chaostheory/staking-service/internal/domain"
	"github.com/chaostheory/staking-service/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Retention prunes recorded snapshots older than the retention window on a cron schedule.
type Retention struct {
	cron      *cron.Cron
	recorder  domain.SnapshotRecorder
	retention time.Duration
	timeout   time.Duration
	logger    *logger.Logger
	now       func() time.Time
}

func NewRetention(recorder domain.SnapshotRecorder, retention time.Duration, log *logger.Logger) *Retention {
	return &Retention{
		cron:      cron.New(),
		recorder:  recorder,
		retention: retention,
		timeout:   time.Minute,
		logger:    log,
		now:       time.Now,
	}
}

// Schedule registers the prune job. schedule is a standard five-field expression or a
// descriptor such as "@hourly".
func (r *Retention) Schedule(schedule string) error {
	if _, err := r.cron.AddFunc(schedule, r.runOnce); err != nil {
		return fmt.Errorf("register snapshot prune job: %w", err)
	}
	return nil
}

func (r *Retention) Start() {
	r.cron.Start()
	r.logger.Infow("Snapshot retention started", "retention", r.retention)
}

// Stop waits for a running prune to finish.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("Snapshot retention stopped")
}

func (r *Retention) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if _, err := r.Prune(ctx); err != nil {
		r.logger.Errorw("Snapshot prune failed", "error", err)
	}
}

func (r *Retention) Prune(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.retention)

	deleted, err := r.recorder.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	r.logger.Infow("Pruned snapshots", "cutoff", cutoff, "deleted", deleted)
	return deleted, nil
}
