package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rockingester/internal/dataface"
	"rockingester/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories and metadata store reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			var pinger preflight.Pinger
			store, openErr := dataface.Open(cmd.Context(), cfg)
			if openErr == nil {
				defer store.Close()
				pinger = store
			}

			results := preflight.RunAll(cmd.Context(), cfg, pinger)
			if openErr != nil {
				results = append(results, preflight.Result{
					Name:   "Metadata store (" + cfg.Store.Backend + ")",
					Detail: openErr.Error(),
				})
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, "Preflight:")
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}
}
