// ticket-engine serves ticket checkout, wallet and prize administration over HTTP.
//
// Usage:
//
//	ticket-engine [--config path] [--migrate-only]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rafflehq/ticket-engine/internal/app"
	"github.com/rafflehq/ticket-engine/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config.AppConfig

	flagSet := pflag.NewFlagSet("ticket-engine", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.ConfigPath, "config", "", "path to config.yaml (default: $"+config.EnvConfigPath+" or ./config.yaml)")
	flagSet.BoolVar(&cfg.MigrateOnly, "migrate-only", false, "apply database migrations and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnly {
		return app.Migrate(ctx, cfg)
	}
	if err := app.RunServer(ctx, cfg); err != nil {
		log.WithError(err).Error("ticket engine exited")
		return err
	}
	return nil
}
