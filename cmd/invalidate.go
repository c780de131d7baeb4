package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/materials-cli/internal/builder"
)

var (
	invalidateBuilder string
	invalidateReasons []string
	invalidateRestore bool
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate TASK_ID...",
	Short: "Mark tasks invalid so the next build deprecates what they supply",
	Long:  "Writes validation entries for the given task ids. With --restore the tasks are marked valid again. Affected partitions are rebuilt by the next build.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		bc, err := builder.BuilderConfig(invalidateBuilder, cfg)
		if err != nil {
			return err
		}
		if bc.Validation == "" {
			return eris.Errorf("invalidate: %s has no validation collection configured", invalidateBuilder)
		}

		backend, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer backend.Close() //nolint:errcheck

		n, err := builder.SetValidity(ctx, backend.Collection(bc.Validation), args, invalidateRestore, invalidateReasons, time.Now())
		if err != nil {
			return eris.Wrap(err, "invalidate")
		}

		zap.L().Info("validation entries written",
			zap.String("builder", invalidateBuilder),
			zap.Int64("entries", n),
			zap.Bool("valid", invalidateRestore),
		)
		return nil
	},
}

func init() {
	invalidateCmd.Flags().StringVar(&invalidateBuilder, "builder", builder.Materials, "builder whose validation collection is written")
	invalidateCmd.Flags().StringSliceVar(&invalidateReasons, "reason", nil, "why the tasks are invalid")
	invalidateCmd.Flags().BoolVar(&invalidateRestore, "restore", false, "mark the tasks valid instead")
	rootCmd.AddCommand(invalidateCmd)
}
