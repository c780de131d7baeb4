package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/materials-cli/internal/builder"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the store schema and builder indexes",
	Long:  "Applies the document store schema, then creates the indexes both builders query on.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Opening the backend applies its schema.
		backend, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer backend.Close() //nolint:errcheck

		for _, name := range []string{builder.Materials, builder.Molecules} {
			d, err := newDriver(backend, name, runFlags{})
			if err != nil {
				return err
			}
			if err := d.EnsureIndexes(ctx); err != nil {
				return eris.Wrapf(err, "migrate %s", name)
			}
		}

		zap.L().Info("store migrated", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
