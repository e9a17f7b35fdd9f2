package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/stash/internal/config"
	dockerpkg "github.com/dyluth/stash/internal/docker"
	"github.com/dyluth/stash/internal/instance"
	"github.com/dyluth/stash/internal/printer"
)

var upInstanceName string

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start storage for a local node",
	Long: `Start a Redis container holding a local node's log.

The instance name is taken from --name, then node.instance in stash.yml,
and is auto-generated (default-N) otherwise. The command prints the
environment to start stashd against the new instance.`,
	Args: cobra.NoArgs,
	RunE: runUp,
}

func init() {
	upCmd.Flags().StringVarP(&upInstanceName, "name", "n", "", "Instance name (auto-generated if omitted)")
	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return printer.Error("Docker unavailable", err.Error(), nil)
	}
	defer cli.Close()

	name, err := targetInstance(ctx, cfg, upInstanceName, func(ctx context.Context) (string, error) {
		return instance.GenerateDefaultName(ctx, cli)
	})
	if err != nil {
		return err
	}

	printer.StepTo(cmd.OutOrStdout(), "Starting Redis for instance '%s'...\n", name)
	info, err := instance.Start(ctx, cli, instance.StartOptions{Name: name, RedisImage: cfg.Node.RedisImage})
	if err != nil {
		return printer.Error(
			fmt.Sprintf("failed to start instance '%s'", name),
			err.Error(),
			[]string{
				fmt.Sprintf("Stop the existing instance: stash down --name %s", name),
				"Choose a different name: stash up --name other-name",
			},
		)
	}

	out := cmd.OutOrStdout()
	printer.SuccessTo(out, "Instance '%s' started\n\n", info.Name)
	fmt.Fprintf(out, "Start the node with:\n")
	fmt.Fprintf(out, "  STASH_INSTANCE_NAME=%s REDIS_URL=%s STASH_DATABASE=%s STASH_LISTEN=%s stashd\n\n",
		info.Name, info.RedisURL, cfg.Node.Database, cfg.Node.Listen)
	fmt.Fprintf(out, "Run 'stash down --name %s' when finished\n", info.Name)
	return nil
}

// targetInstance picks the instance name from the flag, then stash.yml,
// then generate.
func targetInstance(ctx context.Context, cfg *config.StashConfig, flag string, generate func(context.Context) (string, error)) (string, error) {
	switch {
	case flag != "":
		if err := instance.ValidateName(flag); err != nil {
			return "", printer.Error("invalid instance name", err.Error(), nil)
		}
		return flag, nil
	case cfg.Node.Instance != "":
		return cfg.Node.Instance, nil
	case generate != nil:
		name, err := generate(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to generate instance name: %w", err)
		}
		return name, nil
	default:
		return "", printer.Error("no instance name", "Neither --name nor node.instance in stash.yml is set.", []string{
			"Pass the instance to stop: stash down --name default-1",
			"List instances: stash status",
		})
	}
}
