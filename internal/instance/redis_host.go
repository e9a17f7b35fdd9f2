package instance

import (
	"fmt"
	"os"
)

// RedisHostEnv overrides the host in URLs printed for local instances.
const RedisHostEnv = "STASH_REDIS_HOST"

// GetRedisHost returns the host stashd should dial for an instance's
// published port: $STASH_REDIS_HOST if set, "host.docker.internal" inside a
// container, "localhost" otherwise.
func GetRedisHost() string {
	if host := os.Getenv(RedisHostEnv); host != "" {
		return host
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return "host.docker.internal"
	}
	return "localhost"
}

// GetRedisURL is the REDIS_URL for an instance published on port.
func GetRedisURL(port int) string {
	return fmt.Sprintf("redis://%s:%d/0", GetRedisHost(), port)
}
