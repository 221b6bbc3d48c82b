package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"rockingester/internal/config"
	"rockingester/internal/dataface"
	"rockingester/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show registered well count and archive contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, "System:")
			fmt.Fprintln(out, renderStatusLine("Config", statusInfo, configDescription(ctx), colorize))
			daemonKind, daemonDetail := daemonState(cfg)
			fmt.Fprintln(out, renderStatusLine("Daemon", daemonKind, daemonDetail, colorize))
			storeKind, storeDetail := storeState(cmd.Context(), cfg, store)
			fmt.Fprintln(out, renderStatusLine("Metadata store", storeKind, storeDetail, colorize))
			fmt.Fprintln(out)

			rows, err := statusRows(cmd.Context(), cfg, store)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderTable([]string{"Item", "Location", "Count"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
}

func configDescription(ctx *commandContext) string {
	if !ctx.configSeen {
		return ctx.configPath + " (defaults)"
	}
	return ctx.configPath
}

// daemonState probes the daemon lock. A lock that can be taken means no daemon holds it.
func daemonState(cfg *config.Config) (statusKind, string) {
	if lockHeld(cfg.LockPath()) {
		return statusOK, "running"
	}
	return statusWarn, "not running"
}

func storeState(ctx context.Context, cfg *config.Config, store dataface.Store) (statusKind, string) {
	r := preflight.CheckStore(ctx, cfg.Store.Backend, store)
	if !r.Passed {
		return statusError, r.Detail
	}
	return statusOK, cfg.Store.Backend
}

func statusRows(ctx context.Context, cfg *config.Config, store dataface.Store) ([][]string, error) {
	wells, err := store.CountCrystalWells(ctx)
	if err != nil {
		return nil, fmt.Errorf("count crystal wells: %w", err)
	}
	pending := countEntries(cfg.Collector.ScrapableRoot)
	return [][]string{
		{"Registered wells", cfg.Store.Backend, strconv.Itoa(wells)},
		{"Pending directories", cfg.Collector.ScrapableRoot, pending},
		{"Ingested directories", cfg.Collector.IngestedDirectory, countEntries(cfg.Collector.IngestedDirectory)},
		{"Nobarcode directories", cfg.Collector.NobarcodeDirectory, countEntries(cfg.Collector.NobarcodeDirectory)},
	}, nil
}

// countEntries counts visible subdirectories of dir, or "-" when dir cannot be read.
func countEntries(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "-"
	}
	n := 0
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			n++
		}
	}
	return strconv.Itoa(n)
}
