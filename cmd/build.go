package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/materials-cli/internal/builder"
)

var buildFlags runFlags

var buildCmd = &cobra.Command{
	Use:       "build {materials|molecules}",
	Short:     "Rebuild documents for every partition with new or changed tasks",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{builder.Materials, builder.Molecules},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		backend, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer backend.Close() //nolint:errcheck

		d, err := newDriver(backend, args[0], buildFlags)
		if err != nil {
			return err
		}

		summary, err := d.Run(ctx)
		if err != nil {
			return eris.Wrapf(err, "build %s", args[0])
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	buildCmd.Flags().BoolVar(&buildFlags.dryRun, "dry-run", false, "build documents without writing them")
	buildCmd.Flags().IntVar(&buildFlags.workers, "workers", 0, "partitions built concurrently (default from config)")
	buildCmd.Flags().StringSliceVar(&buildFlags.formulas, "formula", nil, "only build these formulas")
	rootCmd.AddCommand(buildCmd)
}
