package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"rockingester/internal/collector"
	"rockingester/internal/logging"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a single scan pass and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			logger := logging.NewNop()
			if verbose {
				if logger, err = logging.NewFromConfig(cfg); err != nil {
					return fmt.Errorf("init logger: %w", err)
				}
			}
			coll, err := collector.New(cfg, store, collector.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("create collector: %w", err)
			}

			summary, passErr := coll.RunPass(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), renderPassSummary(summary))
			if passErr != nil {
				return fmt.Errorf("scan pass: %w", passErr)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log per-directory progress")
	return cmd
}

func renderPassSummary(s collector.PassSummary) string {
	count := func(label string, n int) []string {
		return []string{label, strconv.Itoa(n)}
	}
	rows := [][]string{
		{"Pass", s.PassID},
		{"Elapsed", s.Duration().Round(time.Millisecond).String()},
		count("Candidates", s.Candidates),
		count("Ingested directories", s.Ingested),
		count("Held directories", s.Held),
		count("Deferred directories", s.Deferred),
		count("Removed directories", s.DirectoriesRemoved),
		count("Registered wells", s.Registered),
		count("Already registered", s.AlreadyRegistered),
		count("Files moved", s.FilesMoved),
		count("Files held", s.FilesHeld),
		count("Files unsettled", s.FilesUnsettled),
		count("Files failed", s.FilesFailed),
	}
	if s.Err != "" {
		rows = append(rows, []string{"Error", s.Err})
	}
	return renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}
