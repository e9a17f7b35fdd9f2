package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	dockerpkg "github.com/dyluth/stash/internal/docker"
	"github.com/dyluth/stash/internal/instance"
	"github.com/dyluth/stash/internal/printer"
	"github.com/dyluth/stash/pkg/client"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the node endpoint and local instances",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := client.New(cfg.Endpoint, client.WithQueryTimeout(cfg.Timeouts.Query))
	if err != nil {
		return err
	}
	if err := c.Health(ctx); err != nil {
		printer.WarningTo(out, "Node %s: unreachable (%v)\n", cfg.Endpoint, err)
	} else {
		printer.SuccessTo(out, "Node %s: healthy\n", cfg.Endpoint)
	}

	cli, err := dockerpkg.NewClient(ctx)
	if errors.Is(err, dockerpkg.ErrUnavailable) {
		fmt.Fprintf(out, "\nLocal instances: Docker unavailable\n")
		return nil
	}
	if err != nil {
		return err
	}
	defer cli.Close()

	infos, err := instance.List(ctx, cli)
	if err != nil {
		return err
	}
	formatInstances(out, infos)
	return nil
}

func formatInstances(w io.Writer, infos []instance.Info) {
	if len(infos) == 0 {
		fmt.Fprintf(w, "\nNo local instances\n")
		return
	}

	fmt.Fprintf(w, "\n%-20s %-10s %s\n", "INSTANCE", "STATUS", "REDIS")
	for _, info := range infos {
		fmt.Fprintf(w, "%-20s %-10s %s\n", info.Name, info.Status, info.RedisURL)
	}
}
