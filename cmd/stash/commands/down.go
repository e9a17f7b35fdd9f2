package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	dockerpkg "github.com/dyluth/stash/internal/docker"
	"github.com/dyluth/stash/internal/instance"
	"github.com/dyluth/stash/internal/printer"
)

var downInstanceName string

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop and remove a local node's storage",
	Long: `Stop and remove the Redis container of an instance started by 'stash up'.
The node's log is lost; the projection database is left in place.`,
	Args: cobra.NoArgs,
	RunE: runDown,
}

func init() {
	downCmd.Flags().StringVarP(&downInstanceName, "name", "n", "", "Instance name (defaults to node.instance in stash.yml)")
	rootCmd.AddCommand(downCmd)
}

func runDown(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	name, err := targetInstance(ctx, cfg, downInstanceName, nil)
	if err != nil {
		return err
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return printer.Error("Docker unavailable", err.Error(), nil)
	}
	defer cli.Close()

	if err := instance.Stop(ctx, cli, name); err != nil {
		return printer.Error(fmt.Sprintf("failed to stop instance '%s'", name), err.Error(), []string{
			"List instances: stash status",
		})
	}

	printer.SuccessTo(cmd.OutOrStdout(), "Instance '%s' removed\n", name)
	return nil
}
