package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/you-humble/camstage/internal/infra/queue"
	"github.com/you-humble/camstage/internal/sweeper"
	"github.com/you-humble/camstage/internal/transport"
)

type app struct {
	di  *dependencyInjector
	srv *http.Server
}

func New(ctx context.Context, cfgPath string) *app {
	di := newDI(cfgPath)
	di.Logger()
	mux := http.NewServeMux()
	return &app{
		di: di,
		srv: &http.Server{
			Addr: di.Config().Addr,
			Handler: transport.WithRecover(
				transport.LogMiddleware(
					di.Router(ctx).MountRoutes(mux),
				),
			),
		},
	}
}

type stopper interface {
	Stop()
}

func (a *app) Run(ctx context.Context) error {
	cfg := a.di.Config()

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	a.di.Sweeper(ctx).StartTicker(bgCtx, cfg.SweepInterval)

	var consumer stopper
	if cfg.NATS.URL != "" {
		c := sweeper.NewConsumer(a.di.JetStream(), queue.StreamName, cfg.NATS.Subject, a.di.Sweeper(ctx))
		if err := c.Run(bgCtx); err != nil {
			return err
		}
		consumer = c
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			slog.String("addr", a.srv.Addr),
			slog.String("base_url", cfg.BaseURL),
		)
		if e := a.srv.ListenAndServe(); e != nil && !errors.Is(e, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", e.Error()))
			errCh <- e
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.ShutdownTimeout,
	)
	defer cancel()

	if runErr == nil {
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", slog.String("error", err.Error()))
			runErr = err
		}
	}

	stopBackground()
	if consumer != nil {
		consumer.Stop()
	}
	a.di.Close(shutdownCtx)

	if runErr == nil {
		slog.Info("server gracefully stopped")
	}
	return runErr
}
