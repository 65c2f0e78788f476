package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/docindex-mcp/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show indexed directories and index health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		return a.status(cmd.Context(), cmd.OutOrStdout())
	},
}

func (a *app) status(ctx context.Context, w io.Writer) error {
	ov, err := a.tracker.Overview(ctx)
	if err != nil {
		return err
	}

	if len(ov.Runs) == 0 {
		fmt.Fprintln(w, "Nothing indexed yet. Run 'docindex index <dir>'.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PATH\tSTATUS\tFILES\tINDEXED\tFAILED\tUPDATED")
		for _, run := range ov.Runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				run.Path,
				runStatus(run, a.indexer.Running()),
				humanize.Comma(int64(run.TotalFiles)),
				humanize.Comma(int64(run.SuccessCount)),
				humanize.Comma(int64(run.ErrorCount)),
				humanize.Time(run.UpdatedAt))
		}
		_ = tw.Flush()
	}

	if !a.indexer.Running() {
		stale, err := a.tracker.StaleRuns(ctx)
		if err != nil {
			return err
		}
		if len(stale) > 0 {
			fmt.Fprintf(w, "\n%d interrupted run(s); index those directories again to finish them.\n", len(stale))
		}
	}

	fmt.Fprintf(w, "\nIndex size: %s\n", humanize.Bytes(uint64(ov.SizeBytes)))
	fmt.Fprintf(w, "Extraction errors: %d\n", len(ov.Errors))
	if ov.Sync.InSync() {
		fmt.Fprintf(w, "Search index: in sync (%d documents)\n", ov.Sync.ContentRows)
	} else {
		fmt.Fprintf(w, "Search index: OUT OF SYNC (%d missing, %d orphaned, %d mismatched)\n",
			ov.Sync.MissingIndex, ov.Sync.OrphanedIndex, ov.Sync.MismatchedRows)
	}
	return nil
}

// runStatus labels a run. An in-progress row with no live run was interrupted.
func runStatus(run *storage.IndexRun, running bool) string {
	if run.Status == storage.RunInProgress && !running {
		return "interrupted"
	}
	return run.Status.String()
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
