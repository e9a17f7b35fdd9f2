package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/stash/internal/printer"
	"github.com/dyluth/stash/internal/scaffold"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create stash.yml in the current directory",
	Long: `Create a default stash.yml and a .stash/ directory for the identity key
and the local node's projection.

Use --force to replace an existing stash.yml. Keys in .stash/ are kept.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Replace existing stash.yml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	files, err := scaffold.Initialize(".", forceInit)
	if err != nil {
		return printer.Error("initialization failed", err.Error(), nil)
	}

	out := cmd.OutOrStdout()
	printer.SuccessTo(out, "Initialized stash project\n")
	fmt.Fprintln(out, "\nCreated:")
	for _, f := range files {
		fmt.Fprintf(out, "  %s\n", f.Path)
	}
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Run 'stash up' to start storage for a local node")
	fmt.Fprintln(out, "  2. Start the node with stashd")
	fmt.Fprintln(out, "  3. Run 'stash add <url>' to save your first bookmark")
	return nil
}
