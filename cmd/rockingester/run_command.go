package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rockingester/internal/collector"
	"rockingester/internal/daemon"
	"rockingester/internal/logging"
	"rockingester/internal/metrics"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the collector until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	_, store, err := ctx.openStore(signalCtx)
	if err != nil {
		logger.Error("open metadata store", logging.Error(err))
		return err
	}

	var m *metrics.Collector
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	coll, err := collector.New(cfg, store, collector.WithLogger(logger), collector.WithMetrics(m))
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create collector: %w", err)
	}
	d, err := daemon.New(cfg, store, coll, logger, daemon.WithMetrics(m))
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warn: close metadata store: %v\n", err)
		}
	}()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	d.Wait(signalCtx)
	logger.Info("rockingester daemon shutting down")
	return nil
}
