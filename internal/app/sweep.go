package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/you-humble/camstage/internal/infra/queue"
)

// SweepOnce runs a single retention pass. With direct set, or without NATS
// configured, it sweeps the stores itself. Otherwise it publishes a trigger
// for a running stager replica to pick up.
func SweepOnce(ctx context.Context, cfgPath string, direct bool) error {
	di := newDI(cfgPath)
	di.Logger()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), di.Config().ShutdownTimeout)
	defer cancel()
	defer di.Close(shutdownCtx)

	if direct || di.Config().NATS.URL == "" {
		report, err := di.Sweeper(ctx).Sweep(ctx)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		slog.Info("direct sweep done",
			slog.Int("deleted_tasks", report.DeletedTasks),
			slog.Int("deleted_blobs", report.DeletedBlobs),
		)
		return nil
	}

	pub := queue.New(di.JetStream(), di.Config().NATS.Subject)
	return pub.PublishSweep(ctx, "cli")
}
