// Package config loads stash.yml, the client configuration for the stash CLI.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/dyluth/stash/internal/bookmark"
	"github.com/dyluth/stash/internal/instance"
	"github.com/dyluth/stash/pkg/bus"
)

// DefaultFileName is the configuration file stash looks for in the
// working directory.
const DefaultFileName = "stash.yml"

// Defaults applied by Validate
const (
	DefaultEndpoint        = "http://localhost:2020"
	DefaultSubmitTimeout   = 10 * time.Second
	DefaultQueryTimeout    = 10 * time.Second
	DefaultResponseTimeout = 30 * time.Second
	DefaultListenAddr      = ":2020"
	DefaultDatabasePath    = "stash.db"
)

// StashConfig represents the top-level stash.yml configuration
type StashConfig struct {
	Version  string          `yaml:"version"`
	Endpoint string          `yaml:"endpoint"`          // Node base URL
	Schema   string          `yaml:"schema"`            // bookmarks/v1 or bookmarks/v2
	Identity *IdentityConfig `yaml:"identity,omitempty"`
	Timeouts *TimeoutsConfig `yaml:"timeouts,omitempty"`
	Bus      *BusConfig      `yaml:"bus,omitempty"`
	Node     *NodeConfig     `yaml:"node,omitempty"`
}

// IdentityConfig specifies where the signing key lives
type IdentityConfig struct {
	KeyFile string `yaml:"key_file,omitempty"` // Empty = ephemeral identity per run
}

// TimeoutsConfig bounds node round trips and unanswered UI requests
type TimeoutsConfig struct {
	Submit   time.Duration `yaml:"submit,omitempty"`
	Query    time.Duration `yaml:"query,omitempty"`
	Response time.Duration `yaml:"response,omitempty"`
}

// BusConfig sizes the message bus
type BusConfig struct {
	Capacity int `yaml:"capacity,omitempty"`
}

// NodeConfig describes the local node started by `stash up` and stashd
type NodeConfig struct {
	Listen     string `yaml:"listen,omitempty"`
	RedisURL   string `yaml:"redis_url,omitempty"`
	RedisImage string `yaml:"redis_image,omitempty"`
	Database   string `yaml:"database,omitempty"`
	Instance   string `yaml:"instance,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *StashConfig {
	cfg := &StashConfig{Version: "1.0"}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

// Validate performs strict validation on the configuration and fills in
// defaults for anything left unset.
func (c *StashConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}

	if c.Schema == "" {
		c.Schema = bookmark.VersionV2
	}
	if _, err := bookmark.ForVersion(c.Schema); err != nil {
		return err
	}

	if c.Identity == nil {
		c.Identity = &IdentityConfig{}
	}

	if c.Timeouts == nil {
		c.Timeouts = &TimeoutsConfig{}
	}
	if err := c.Timeouts.validate(); err != nil {
		return err
	}

	if c.Bus == nil {
		c.Bus = &BusConfig{}
	}
	if c.Bus.Capacity == 0 {
		c.Bus.Capacity = bus.DefaultCapacity
	}
	if c.Bus.Capacity < 1 {
		return fmt.Errorf("bus.capacity must be >= 1, got %d", c.Bus.Capacity)
	}

	if c.Node == nil {
		c.Node = &NodeConfig{}
	}
	return c.Node.validate()
}

func (t *TimeoutsConfig) validate() error {
	for _, d := range []struct {
		name  string
		value *time.Duration
		def   time.Duration
	}{
		{"submit", &t.Submit, DefaultSubmitTimeout},
		{"query", &t.Query, DefaultQueryTimeout},
		{"response", &t.Response, DefaultResponseTimeout},
	} {
		if *d.value == 0 {
			*d.value = d.def
		}
		if *d.value < 0 {
			return fmt.Errorf("timeouts.%s must be positive, got %s", d.name, *d.value)
		}
	}
	return nil
}

func (n *NodeConfig) validate() error {
	if n.Listen == "" {
		n.Listen = DefaultListenAddr
	}
	if n.Database == "" {
		n.Database = DefaultDatabasePath
	}
	if n.RedisURL != "" {
		if _, err := redis.ParseURL(n.RedisURL); err != nil {
			return fmt.Errorf("invalid node.redis_url: %w", err)
		}
	}
	if n.Instance != "" {
		if err := instance.ValidateName(n.Instance); err != nil {
			return fmt.Errorf("node.instance: %w", err)
		}
	}
	return nil
}

// Load reads and validates stash.yml from the specified path
func Load(path string) (*StashConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config StashConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
