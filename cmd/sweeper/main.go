package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/you-humble/camstage/internal/app"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sweeper:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath string
		direct  bool
	)

	flagSet := pflag.NewFlagSet("sweeper", pflag.ContinueOnError)
	flagSet.StringVarP(&cfgPath, "config", "c", "./configs/local.yaml", "path to the YAML config file")
	flagSet.BoolVar(&direct, "direct", false, "sweep the stores from this process instead of publishing a trigger")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	return app.SweepOnce(ctx, cfgPath, direct)
}
