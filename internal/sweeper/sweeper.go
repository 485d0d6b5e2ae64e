// Package sweeper reclaims tasks and uploaded blobs once they fall out of the
// retention window.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/you-humble/camstage/internal/domain"
	"github.com/you-humble/camstage/internal/metrics"

	"golang.org/x/sync/errgroup"
)

const DefaultRetention = 60 * time.Minute

type Cleaner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

type sweeper struct {
	retention time.Duration
	tasks     Cleaner
	blobs     Cleaner
	now       func() time.Time
}

func New(retention time.Duration, tasks, blobs Cleaner) *sweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &sweeper{
		retention: retention,
		tasks:     tasks,
		blobs:     blobs,
		now:       time.Now,
	}
}

// Sweep deletes every task and blob created before now minus the retention
// window. The two passes are independent: a failing pass is logged and the
// report carries whatever the other pass removed.
func (s *sweeper) Sweep(ctx context.Context) (domain.SweepReport, error) {
	report := domain.SweepReport{Cutoff: s.now().Add(-s.retention)}

	var eg errgroup.Group
	eg.Go(func() error {
		n, err := s.tasks.DeleteOlderThan(ctx, report.Cutoff)
		if err != nil {
			slog.Error("sweeper: task pass", slog.String("error", err.Error()))
		}
		report.DeletedTasks = n
		return nil
	})
	eg.Go(func() error {
		n, err := s.blobs.DeleteOlderThan(ctx, report.Cutoff)
		if err != nil {
			slog.Error("sweeper: blob pass", slog.String("error", err.Error()))
		}
		report.DeletedBlobs = n
		return nil
	})
	_ = eg.Wait()

	metrics.RecordSweep(report.DeletedTasks, report.DeletedBlobs)
	slog.Info("sweep finished",
		slog.Time("cutoff", report.Cutoff),
		slog.Int("deleted_tasks", report.DeletedTasks),
		slog.Int("deleted_blobs", report.DeletedBlobs),
	)

	return report, nil
}

// StartTicker sweeps every interval until ctx is done. A non-positive
// interval disables the ticker.
func (s *sweeper) StartTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		slog.Info("sweeper: ticker disabled")
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.Sweep(ctx)
			}
		}
	}()
}
