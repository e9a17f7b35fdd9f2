package docker

import (
	"fmt"

	"github.com/google/uuid"
)

// Label keys used for stash resources
const (
	LabelProject       = "stash.project"
	LabelInstanceName  = "stash.instance.name"
	LabelInstanceRunID = "stash.instance.run_id"
	LabelComponent     = "stash.component"
	LabelRedisPort     = "stash.redis.port"
)

// ComponentRedis labels the container holding a node's log.
const ComponentRedis = "redis"

// BuildLabels creates the standard label set for all stash resources.
// component may be empty.
func BuildLabels(instanceName, runID, component string) map[string]string {
	labels := map[string]string{
		LabelProject:       "true",
		LabelInstanceName:  instanceName,
		LabelInstanceRunID: runID,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// GenerateRunID creates a new UUID for an instance run.
// Each invocation of `stash up` gets a unique run ID.
func GenerateRunID() string {
	return uuid.New().String()
}

// RedisContainerName returns the Redis container name for an instance
func RedisContainerName(instanceName string) string {
	return fmt.Sprintf("stash-redis-%s", instanceName)
}
