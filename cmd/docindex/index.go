package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/docindex-mcp/internal/indexer"
)

var flagExts []string

var indexCmd = &cobra.Command{
	Use:   "index <dir>",
	Short: "Index the documents under a directory",
	Long: `Index every file under <dir> whose extension is in the allow-list.

Without --ext the list from the previous run is used, or the configured
default on first use. Pass --ext "" to index every file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		root, err := indexer.OpenRoot(args[0])
		if err != nil {
			return err
		}
		exts, err := a.resolveExtensions(ctx, flagExts, cmd.Flags().Changed("ext"))
		if err != nil {
			return err
		}

		stats, err := a.index(ctx, root, exts, cmd.ErrOrStderr())
		if stats != nil {
			printStats(cmd.OutOrStdout(), stats)
		}
		return err
	},
}

// index runs the pipeline in the background and reports progress to w
func (a *app) index(ctx context.Context, root indexer.Root, exts []string, w io.Writer) (*indexer.Stats, error) {
	task, err := a.indexer.Start(ctx, root, exts)
	if err != nil {
		return nil, err
	}

	for p := range task.Progress() {
		switch p.Phase {
		case indexer.PhaseEnumerating:
			fmt.Fprintf(w, "Scanning %s (%s)...\n", root.Path, describeExtensions(exts))
		case indexer.PhaseProcessing:
			if p.Total > 0 {
				fmt.Fprintf(w, "\r  %d/%d files", p.Processed, p.Total)
			}
		case indexer.PhaseFinalizing:
			fmt.Fprintln(w)
		}
	}
	return task.Wait()
}

func describeExtensions(exts []string) string {
	if len(exts) == 0 {
		return "all files"
	}
	return strings.Join(exts, ", ")
}

func printStats(w io.Writer, stats *indexer.Stats) {
	fmt.Fprintf(w, "Indexed %s in %s\n", stats.RunPath, stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Files:  %s total, %s indexed, %s failed\n",
		humanize.Comma(int64(stats.TotalFiles)),
		humanize.Comma(int64(stats.Succeeded)),
		humanize.Comma(int64(stats.Failed)))
	fmt.Fprintf(w, "  Index:  %s\n", humanize.Bytes(uint64(stats.IndexSizeBytes)))
	if stats.Failed > 0 {
		fmt.Fprintln(w, "Run 'docindex errors' to see why files failed.")
	}
}

func init() {
	indexCmd.Flags().StringSliceVar(&flagExts, "ext", nil, "file extensions to index, e.g. --ext txt,pdf")
	rootCmd.AddCommand(indexCmd)
}
