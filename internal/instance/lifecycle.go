package instance

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	dockerpkg "github.com/dyluth/stash/internal/docker"
)

// DefaultRedisImage backs a node log when stash.yml names none.
const DefaultRedisImage = "redis:7-alpine"

// StartOptions configures Start.
type StartOptions struct {
	Name       string
	RedisImage string
}

// Start creates and starts the Redis container for a new instance. The
// container is removed again if it cannot be started.
func Start(ctx context.Context, cli *client.Client, opts StartOptions) (*Info, error) {
	if err := ValidateName(opts.Name); err != nil {
		return nil, err
	}
	image := opts.RedisImage
	if image == "" {
		image = DefaultRedisImage
	}

	collision, err := CheckNameCollision(ctx, cli, opts.Name)
	if err != nil {
		return nil, err
	}
	if collision {
		return nil, fmt.Errorf("instance '%s' already exists", opts.Name)
	}

	port, err := FindNextAvailablePort(ctx, cli)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate Redis port: %w", err)
	}

	labels := dockerpkg.BuildLabels(opts.Name, dockerpkg.GenerateRunID(), dockerpkg.ComponentRedis)
	labels[dockerpkg.LabelRedisPort] = strconv.Itoa(port)

	name := dockerpkg.RedisContainerName(opts.Name)
	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:  image,
		Labels: labels,
		ExposedPorts: nat.PortSet{
			"6379/tcp": struct{}{},
		},
	}, &container.HostConfig{
		PortBindings: nat.PortMap{
			"6379/tcp": []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(port)}},
		},
	}, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis container: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if rmErr := cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true}); rmErr != nil {
			log.Printf("[Instance] [WARN] Failed to remove %s after start failure: %v", name, rmErr)
		}
		return nil, fmt.Errorf("failed to start Redis container: %w", err)
	}

	return &Info{Name: opts.Name, Status: StatusRunning, RedisURL: GetRedisURL(port)}, nil
}

// Stop stops and removes every container of an instance.
func Stop(ctx context.Context, cli *client.Client, name string) error {
	containers, err := listContainers(ctx, cli, fmt.Sprintf("%s=%s", dockerpkg.LabelInstanceName, name))
	if err != nil {
		return err
	}
	if len(containers) == 0 {
		return fmt.Errorf("instance '%s' not found", name)
	}

	timeout := 10
	for _, c := range containers {
		_ = cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout})
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			return fmt.Errorf("failed to remove container %s: %w", c.ID, err)
		}
	}
	return nil
}

// List returns every stash instance, sorted by name.
func List(ctx context.Context, cli *client.Client) ([]Info, error) {
	containers, err := listContainers(ctx, cli, fmt.Sprintf("%s=true", dockerpkg.LabelProject))
	if err != nil {
		return nil, err
	}
	return summarize(containers), nil
}

func summarize(containers []dockerContainer) []Info {
	byName := make(map[string][]dockerContainer)
	for _, c := range containers {
		name := c.Labels[dockerpkg.LabelInstanceName]
		byName[name] = append(byName[name], c)
	}

	infos := make([]Info, 0, len(byName))
	for name, cs := range byName {
		info := Info{Name: name, Status: DetermineStatus(cs)}
		for _, c := range cs {
			if port, err := strconv.Atoi(c.Labels[dockerpkg.LabelRedisPort]); err == nil {
				info.RedisURL = GetRedisURL(port)
			}
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
