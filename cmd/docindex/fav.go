package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var favCmd = &cobra.Command{
	Use:   "fav",
	Short: "Manage favorite documents",
}

var favAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Save an indexed document as a favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		if err := a.store.AddFavorite(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("add favorite %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", args[0])
		return nil
	},
}

var favListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorite documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		return a.listFavorites(cmd.Context(), cmd.OutOrStdout())
	},
}

var favRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"remove"},
	Short:   "Remove a favorite",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		if err := a.store.RemoveFavorite(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("remove favorite %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

func (a *app) listFavorites(ctx context.Context, w io.Writer) error {
	favs, err := a.store.ListFavorites(ctx)
	if err != nil {
		return err
	}
	if len(favs) == 0 {
		fmt.Fprintln(w, "No favorites.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tDIR\tID")
	for _, f := range favs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.FileName, f.DirLabel, f.ID)
	}
	return tw.Flush()
}

func init() {
	favCmd.AddCommand(favAddCmd, favListCmd, favRmCmd)
	rootCmd.AddCommand(favCmd)
}
