package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dyluth/stash/internal/hoard"
	"github.com/dyluth/stash/internal/printer"
	"github.com/dyluth/stash/internal/resolver"
)

var getCmd = &cobra.Command{
	Use:   "get DOCUMENT_ID",
	Short: "Show one bookmark as JSON",
	Long: `Show one bookmark as pretty-printed JSON.

DOCUMENT_ID is a full document ID or the short ID shown by 'stash list'
(at least 6 trailing characters).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGet(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(ctx context.Context, w io.Writer, documentID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := newService(cfg)
	if err != nil {
		return err
	}

	err = hoard.GetBookmark(ctx, svc, documentID, w)
	switch {
	case err == nil:
		return nil
	case hoard.IsNotFound(err):
		return printer.Error(
			fmt.Sprintf("bookmark not found: %s", documentID),
			"No bookmark with this document ID is visible on the node.",
			[]string{"List bookmarks with: stash list -o jsonl"},
		)
	case resolver.IsAmbiguousError(err):
		return printer.Error("ambiguous document ID", resolver.FormatAmbiguousError(err.(*resolver.AmbiguousError)), nil)
	default:
		return nodeError("get bookmark", cfg, err)
	}
}
