package commands

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyluth/stash/internal/bookmark"
	"github.com/dyluth/stash/internal/printer"
	"github.com/dyluth/stash/internal/watch"
)

var addWait bool

var addCmd = &cobra.Command{
	Use:   "add URL [DESCRIPTION...]",
	Short: "Add a bookmark",
	Long: `Sign a new bookmark with your identity and submit it to the node.

The node accepts the write immediately; listings show it once the node's
projection has caught up. Use --wait to block until then.

Examples:
  stash add https://go.dev "The Go programming language"
  stash add --wait https://example.com`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAdd(cmd.Context(), cmd.OutOrStdout(), args[0], strings.Join(args[1:], " "))
	},
}

func init() {
	addCmd.Flags().BoolVar(&addWait, "wait", false, "Wait until the bookmark is visible in listings")
	rootCmd.AddCommand(addCmd)
}

func runAdd(ctx context.Context, w io.Writer, url, description string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := newService(cfg)
	if err != nil {
		return err
	}

	doc, err := svc.Add(ctx, url, description)
	if err != nil {
		if errors.Is(err, bookmark.ErrEmptyURL) {
			return printer.Error("URL is required", "A bookmark needs a non-empty URL.", nil)
		}
		return nodeError("add bookmark", cfg, err)
	}
	printer.SuccessTo(w, "Added %s (%s)\n", doc.Fields.URL, doc.Meta.DocumentID)

	if !addWait {
		return nil
	}
	if _, err := watch.PollForBookmark(ctx, svc, doc, 0, cfg.Timeouts.Response); err != nil {
		return printer.Error("bookmark not yet visible", err.Error(), []string{
			"The write was accepted; check again shortly with: stash list",
		})
	}
	printer.SuccessTo(w, "Visible in listings\n")
	return nil
}
