package app

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/you-humble/camstage/internal/infra/container"

	"google.golang.org/grpc"
)

type converterApp struct {
	di  *dependencyInjector
	srv *grpc.Server
}

// NewConverter builds the standalone container service. Only the converter
// section of the config is used.
func NewConverter(cfgPath string) *converterApp {
	di := newDI(cfgPath)
	cfg := di.Config().Converter

	return &converterApp{
		di: di,
		srv: container.NewServer(
			container.NewSPKPacker(cfg.MaxParallel),
			di.Logger(),
			cfg.MaxMessageMb<<20,
		),
	}
}

func (a *converterApp) Run(ctx context.Context) error {
	l := a.di.Logger()
	addr := a.di.Config().Converter.Listen

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("converter gRPC service listening", "addr", addr)
		if err := a.srv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("failed to serve: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		l.Error("server exited with error", "err", err)
		return err
	case <-ctx.Done():
	}

	l.Info("shutdown signal received, starting graceful shutdown")

	stopped := make(chan struct{})
	go func() {
		a.srv.GracefulStop()
		close(stopped)
	}()

	timer := time.NewTimer(a.di.Config().ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-stopped:
		l.Info("graceful shutdown completed")
	case <-timer.C:
		l.Warn("graceful stop timed out, forcing stop")
		a.srv.Stop()
	}

	return nil
}
