// Command avm runs the depth-tuned stratified valuation pipeline.
//
//	avm -config avm.yaml
//
// Settings come from the built-in defaults, the optional YAML file, a .env
// file in the working directory and AVM_ prefixed environment variables, in
// that order.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/YuminosukeSato/tieravm/config"
	"github.com/YuminosukeSato/tieravm/pipeline"
	"github.com/YuminosukeSato/tieravm/pkg/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "avm: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := log.SetupLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := pipeline.Run(ctx, cfg)
	if err != nil {
		log.GetLoggerWithName("avm").Error("Run failed", err)
		return err
	}
	return summary.Print(os.Stdout)
}
