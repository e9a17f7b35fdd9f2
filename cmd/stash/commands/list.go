package commands

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/dyluth/stash/internal/hoard"
	"github.com/dyluth/stash/internal/printer"
	"github.com/dyluth/stash/internal/timespec"
)

var (
	listOutputFormat string
	listSearch       string
	listSince        string
	listUntil        string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List bookmarks",
	Long: `List bookmarks known to the node, newest first.

Output Formats:
  default - Human-readable table
  jsonl   - Line-delimited JSON, one document per line

Filters:
  --search - Description contains text (case-insensitive)
  --since  - Added after this time (duration like 2h or 7d, date, or RFC3339)
  --until  - Added before this time

Examples:
  stash list
  stash list --search=golang --since=7d
  stash list -o jsonl | jq -r '.fields.url'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	listCmd.Flags().StringVarP(&listOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "Filter by description text")
	listCmd.Flags().StringVar(&listSince, "since", "", "Show bookmarks added after time")
	listCmd.Flags().StringVar(&listUntil, "until", "", "Show bookmarks added before time")
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context, w io.Writer) error {
	format, err := hoard.ParseFormat(listOutputFormat)
	if err != nil {
		return printer.Error("invalid output format", err.Error(), []string{"Valid formats: default, jsonl"})
	}

	since, until, err := timespec.ParseRange(listSince, listUntil)
	if err != nil {
		return printer.Error("invalid time filter", err.Error(), nil)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := newService(cfg)
	if err != nil {
		return err
	}

	filters := &hoard.FilterCriteria{
		Search:           listSearch,
		SinceTimestampMs: since,
		UntilTimestampMs: until,
	}
	if _, err := filters.Predicate(svc.Schema()); err != nil {
		return printer.Error("unsupported filter", err.Error(), []string{
			"Set schema: bookmarks/v2 in stash.yml to filter by time",
		})
	}

	if err := hoard.ListBookmarks(ctx, svc, format, filters, w); err != nil {
		return nodeError("list bookmarks", cfg, err)
	}
	return nil
}
