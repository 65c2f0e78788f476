package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/docindex-mcp/internal/searcher"
)

var (
	flagName    string
	flagContent string
	flagRaw     string
	flagLimit   int
)

// errNoQuery is returned when search is given nothing to look for
var errNoQuery = errors.New("nothing to search for: pass --content, --name or --raw")

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search indexed documents",
	Example: `  docindex search --content timeout --name server
  docindex search --content 错误
  docindex search --raw 'content:"timeout" AND file_name:"server"*'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		return a.search(cmd.Context(), cmd.OutOrStdout(), flagRaw, flagName, flagContent, flagLimit)
	},
}

// search runs a raw query, or builds one from name and content, and prints the hits
func (a *app) search(ctx context.Context, w io.Writer, raw, name, content string, limit int) error {
	var (
		resp *searcher.Response
		err  error
	)
	switch {
	case raw != "":
		resp, err = a.searcher.Search(ctx, raw)
	case name != "" || content != "":
		resp, err = a.searcher.SearchFields(ctx, name, content)
	default:
		return errNoQuery
	}
	if err != nil {
		return err
	}

	a.logger.Debug("search complete",
		"mode", resp.Mode,
		"hits", len(resp.Hits),
		"cache_hit", resp.CacheHit,
		"duration", resp.Duration)

	printHits(w, resp, limit)
	return nil
}

func printHits(w io.Writer, resp *searcher.Response, limit int) {
	hits := resp.Hits
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	if len(hits) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FILE\tDIR\tEXT\tID")
		for _, h := range hits {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", h.FileName, h.DirLabel, h.Ext, h.ID)
		}
		_ = tw.Flush()
	}

	fmt.Fprintf(w, "%d hits (%s, %s)", len(resp.Hits), resp.Mode, resp.Duration.Round(time.Microsecond))
	if len(hits) < len(resp.Hits) {
		fmt.Fprintf(w, ", showing %d", len(hits))
	}
	fmt.Fprintln(w)
}

func init() {
	searchCmd.Flags().StringVar(&flagName, "name", "", "file name prefix")
	searchCmd.Flags().StringVar(&flagContent, "content", "", "keyword in document text")
	searchCmd.Flags().StringVar(&flagRaw, "raw", "", "raw query, takes precedence over --name and --content")
	searchCmd.Flags().IntVar(&flagLimit, "limit", 50, "maximum hits to print (0 for all)")
	rootCmd.AddCommand(searchCmd)
}
