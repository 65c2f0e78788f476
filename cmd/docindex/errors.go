package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "List files that could not be indexed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		return a.listErrors(cmd.Context(), cmd.OutOrStdout())
	},
}

func (a *app) listErrors(ctx context.Context, w io.Writer) error {
	errs, err := a.tracker.Errors(ctx)
	if err != nil {
		return err
	}
	if len(errs) == 0 {
		fmt.Fprintln(w, "No extraction errors.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DIR\tFILE\tREASON\tMESSAGE")
	for _, e := range errs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.DirLabel, e.FileName, e.Classification, e.Message)
	}
	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(errorsCmd)
}
