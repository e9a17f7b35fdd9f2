package commands

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/stash/internal/bookmark"
	"github.com/dyluth/stash/internal/hoard"
	"github.com/dyluth/stash/internal/printer"
	"github.com/dyluth/stash/internal/syncer"
	"github.com/dyluth/stash/internal/ui"
	"github.com/dyluth/stash/pkg/bus"
)

var shellOutputFormat string

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Browse and add bookmarks interactively",
	Long: `Start an interactive session. Commands are read line by line:

  list                       show all bookmarks
  search <text>              show bookmarks whose description contains text
  add <url> [description]    add a bookmark
  help                       show commands
  quit                       leave the shell

Requests are answered in the background; results are printed as they arrive.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	shellCmd.Flags().StringVarP(&shellOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	format, err := hoard.ParseFormat(shellOutputFormat)
	if err != nil {
		return printer.Error("invalid output format", err.Error(), []string{"Valid formats: default, jsonl"})
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := newService(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	b := bus.New[bookmark.Message](cfg.Bus.Capacity)
	worker := syncer.New(b, svc, max(cfg.Timeouts.Submit, cfg.Timeouts.Query))
	controller := ui.NewController(b, cfg.Timeouts.Response)
	terminal := ui.NewTerminal(out, format, svc.Schema().ID.Name())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = worker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = controller.Run(ctx, terminal)
	}()

	controller.Refresh()
	shellErr := ui.RunShell(ctx, cmd.InOrStdin(), out, controller)

	// Let outstanding requests finish; the controller expires them at
	// their deadline.
	for controller.Pending() > 0 && ctx.Err() == nil {
		time.Sleep(20 * time.Millisecond)
	}

	_ = b.Close()
	cancel()
	wg.Wait()
	return shellErr
}
