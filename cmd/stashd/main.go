// Command stashd runs a stash node: it accepts signed operations, appends
// them to a Redis-backed log and serves queries from a SQLite projection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/stash/internal/bookmark"
	"github.com/dyluth/stash/internal/node"
)

func main() {
	// 1. Load environment variables
	cfg, err := node.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// 2. Open the log and projection
	n, err := node.New(*cfg, bookmark.Descriptors()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create node: %v\n", err)
		os.Exit(1)
	}
	defer n.Close()

	// 3. Verify storage
	if err := n.Ping(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Node starting for instance '%s' with %d schemas\n", cfg.InstanceName, len(bookmark.Descriptors()))

	// 4. Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		errCh <- n.Run(ctx)
	}()

	// 5. Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		fmt.Printf("Received signal %v, shutting down gracefully...\n", sig)
		cancel()
		<-errCh
	case runErr := <-errCh:
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Node error: %v\n", runErr)
			n.Close()
			os.Exit(1)
		}
	}

	fmt.Println("Node stopped")
}
