package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var flagPage int

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one page of a document's extracted text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		return a.show(cmd.Context(), cmd.OutOrStdout(), args[0], flagPage)
	},
}

// show prints a page of a document; pages are numbered from 1 here
func (a *app) show(ctx context.Context, w io.Writer, id string, page int) error {
	p, err := a.searcher.Preview(ctx, id, page-1)
	if err != nil {
		return fmt.Errorf("show %s: %w", id, err)
	}
	fmt.Fprintln(w, p.Text)
	fmt.Fprintf(w, "-- page %d of %d --\n", p.Index+1, p.Total)
	return nil
}

func init() {
	showCmd.Flags().IntVar(&flagPage, "page", 1, "page number, starting at 1")
	rootCmd.AddCommand(showCmd)
}
