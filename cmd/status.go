package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/materials-cli/internal/builder"
)

var (
	statusFlags   runFlags
	statusHistory int
)

var statusCmd = &cobra.Command{
	Use:       "status {materials|molecules}",
	Short:     "List the partitions the next build would rebuild",
	Long:      "Re-derives the pending partitions from the stores without building them, then shows the most recent build runs.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{builder.Materials, builder.Molecules},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		backend, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer backend.Close() //nolint:errcheck

		d, err := newDriver(backend, args[0], statusFlags)
		if err != nil {
			return err
		}
		items, err := d.Items(ctx)
		if err != nil {
			return eris.Wrapf(err, "status %s", args[0])
		}

		zap.L().Info("pending partitions", zap.String("builder", args[0]), zap.Int("partitions", len(items)))
		formatPending(cmd.OutOrStdout(), args[0], items)

		if statusHistory <= 0 || cfg.Build.LogCollection == "" {
			return nil
		}
		runs, err := builder.NewBuildLog(backend.Collection(cfg.Build.LogCollection)).List(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "status %s", args[0])
		}
		if len(runs) > statusHistory {
			runs = runs[:statusHistory]
		}
		if len(runs) > 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout())
			formatRuns(cmd.OutOrStdout(), runs)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringSliceVar(&statusFlags.formulas, "formula", nil, "only consider these formulas")
	statusCmd.Flags().IntVar(&statusHistory, "history", 5, "number of recent build runs to show")
	rootCmd.AddCommand(statusCmd)
}

// formatPending writes the pending partitions of a builder to out.
func formatPending(out io.Writer, name string, items []string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "BUILDER\tPENDING\n")
	_, _ = fmt.Fprintf(w, "%s\t%d\n", name, len(items))
	if len(items) > 0 {
		_, _ = fmt.Fprintln(w, "\nPARTITION\t")
		for _, f := range items {
			_, _ = fmt.Fprintf(w, "%s\t\n", f)
		}
	}
	_ = w.Flush()
}

// formatRuns writes a tabular representation of build runs to out.
func formatRuns(out io.Writer, runs []builder.RunEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "BUILD\tSTATUS\tSTARTED\tDURATION\tPARTITIONS\tDOCUMENTS\tERROR")
	_, _ = fmt.Fprintln(w, "-----\t------\t-------\t--------\t----------\t---------\t-----")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		status := r.Status
		if r.DryRun {
			status += " (dry run)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.BuildID[:min(8, len(r.BuildID))],
			status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.Partitions,
			r.Documents,
			truncate(r.Error, 60),
		)
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
