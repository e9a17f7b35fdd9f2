// Package instance manages the Docker resources behind a local stash node:
// naming, port allocation and the Redis container holding the node's log.
package instance

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	dockerpkg "github.com/dyluth/stash/internal/docker"
)

const (
	// DefaultNamePrefix is the prefix for auto-generated instance names
	DefaultNamePrefix = "default-"

	// MaxNameLength is the maximum length for an instance name (DNS-compatible)
	MaxNameLength = 63
)

// NamePattern matches DNS-compatible names: lowercase alphanumeric, hyphens
// allowed but not at start or end.
var NamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateName checks if an instance name is valid according to DNS naming rules.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("instance name too long: %d characters (max: %d)", len(name), MaxNameLength)
	}

	if !NamePattern.MatchString(name) {
		return fmt.Errorf("invalid instance name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}

	return nil
}

// GenerateDefaultName returns the next unused default-N instance name.
func GenerateDefaultName(ctx context.Context, cli *client.Client) (string, error) {
	containers, err := listContainers(ctx, cli, fmt.Sprintf("%s=true", dockerpkg.LabelProject))
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(containers))
	for _, c := range containers {
		names = append(names, c.Labels[dockerpkg.LabelInstanceName])
	}
	return nextDefaultName(names), nil
}

// nextDefaultName returns default-(N+1) for the highest default-N in names.
func nextDefaultName(names []string) string {
	highestN := 0
	for _, name := range names {
		if !strings.HasPrefix(name, DefaultNamePrefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(name, DefaultNamePrefix)); err == nil && n > highestN {
			highestN = n
		}
	}
	return fmt.Sprintf("%s%d", DefaultNamePrefix, highestN+1)
}

// CheckNameCollision reports whether an instance with the given name already
// has containers.
func CheckNameCollision(ctx context.Context, cli *client.Client, instanceName string) (bool, error) {
	containers, err := listContainers(ctx, cli, fmt.Sprintf("%s=%s", dockerpkg.LabelInstanceName, instanceName))
	if err != nil {
		return false, fmt.Errorf("failed to check for name collision: %w", err)
	}
	return len(containers) > 0, nil
}

func listContainers(ctx context.Context, cli *client.Client, labels ...string) ([]dockerContainer, error) {
	filter := filters.NewArgs()
	for _, l := range labels {
		filter.Add("label", l)
	}

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	return containers, nil
}
