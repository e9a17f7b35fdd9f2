// Package docker holds the Docker client and container labels used to run
// storage for local stash nodes.
package docker

import (
	"context"
	"errors"
	"fmt"

	"github.com/docker/docker/client"
)

// ErrUnavailable is wrapped by NewClient when the daemon does not answer.
var ErrUnavailable = errors.New("docker daemon not accessible")

// NewClient connects to the daemon named by the DOCKER_* environment and
// pings it.
func NewClient(ctx context.Context) (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("%w: %v\n\nstash up needs Docker to run the node's Redis.\nStart Docker Desktop (macOS) or run: sudo systemctl start docker", ErrUnavailable, err)
	}

	return cli, nil
}
