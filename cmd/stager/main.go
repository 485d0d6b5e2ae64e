package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/you-humble/camstage/internal/app"

	"github.com/spf13/pflag"
)

func main() {
	flagSet := pflag.NewFlagSet("stager", pflag.ExitOnError)
	cfgPath := flagSet.StringP("config", "c", "./configs/local.yaml", "path to the YAML config file")
	_ = flagSet.Parse(os.Args[1:])

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	a := app.New(ctx, *cfgPath)
	if err := a.Run(ctx); err != nil {
		log.Fatalln("stager:", err)
	}
}
