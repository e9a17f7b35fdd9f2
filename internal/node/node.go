// Package node implements the stash node: an append-only log of signed
// operations in Redis, a SQLite read model projected from it, and the HTTP
// endpoints clients submit to and query.
//
// The node validates every submission against the schemas it is configured
// with. It does not migrate schemas.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/stash/pkg/schema"
)

// DefaultListenAddr is the node's default HTTP address.
const DefaultListenAddr = "127.0.0.1:2020"

// Config holds the node's runtime configuration.
type Config struct {
	// InstanceName namespaces the node's Redis keys (from STASH_INSTANCE_NAME)
	InstanceName string

	// RedisURL is the Redis connection string (from REDIS_URL)
	RedisURL string

	// DatabasePath is the SQLite projection file (from STASH_DATABASE)
	DatabasePath string

	// ListenAddr is the HTTP listen address (from STASH_LISTEN)
	ListenAddr string

	// CatchUpInterval bounds how stale the projection can get when entry
	// notifications are missed.
	CatchUpInterval time.Duration
}

// LoadConfig reads and validates configuration from environment variables.
// STASH_LISTEN is optional; everything else is required.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		InstanceName: os.Getenv("STASH_INSTANCE_NAME"),
		RedisURL:     os.Getenv("REDIS_URL"),
		DatabasePath: os.Getenv("STASH_DATABASE"),
		ListenAddr:   os.Getenv("STASH_LISTEN"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and applies defaults.
func (c *Config) Validate() error {
	if c.InstanceName == "" {
		return fmt.Errorf("STASH_INSTANCE_NAME environment variable is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL environment variable is required")
	}
	if _, err := redis.ParseURL(c.RedisURL); err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("STASH_DATABASE environment variable is required")
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.CatchUpInterval <= 0 {
		c.CatchUpInterval = DefaultCatchUpInterval
	}
	return nil
}

// Node wires the log, projection, projector and HTTP server together.
type Node struct {
	cfg       Config
	log       *Log
	proj      *Projection
	projector *Projector
	server    *Server
}

// New opens the node's storage. The node serves exactly the given schemas.
func New(cfg Config, schemas ...*schema.Descriptor) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(schemas) == 0 {
		return nil, fmt.Errorf("at least one schema is required")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	l, err := NewLog(redisOpts, cfg.InstanceName)
	if err != nil {
		return nil, err
	}

	proj, err := OpenProjection(cfg.DatabasePath)
	if err != nil {
		l.Close()
		return nil, err
	}

	registry := schema.NewRegistry(schemas...)
	return &Node{
		cfg:       cfg,
		log:       l,
		proj:      proj,
		projector: NewProjector(l, proj, registry, cfg.CatchUpInterval),
		server:    NewServer(l, proj, registry, cfg.InstanceName),
	}, nil
}

// Handler returns the node's HTTP routes.
func (n *Node) Handler() http.Handler {
	return n.server.Handler()
}

// Log returns the node's append-only log.
func (n *Node) Log() *Log {
	return n.log
}

// Projector returns the node's projector.
func (n *Node) Projector() *Projector {
	return n.projector
}

// Ping verifies the node's storage is reachable.
func (n *Node) Ping(ctx context.Context) error {
	if err := n.log.Ping(ctx); err != nil {
		return fmt.Errorf("redis not accessible: %w", err)
	}
	return n.proj.Ping(ctx)
}

// RunProjector runs only the projector until ctx is cancelled.
func (n *Node) RunProjector(ctx context.Context) error {
	return n.projector.Run(ctx)
}

// Run serves HTTP on the configured address and runs the projector until
// ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.cfg.ListenAddr, err)
	}
	return n.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (n *Node) Serve(ctx context.Context, ln net.Listener) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Handler:      n.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- n.projector.Run(runCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	log.Printf("[Node] Instance '%s' listening on %s", n.cfg.InstanceName, ln.Addr())

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Printf("[Node] Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Node] [WARN] HTTP shutdown: %v", err)
	}
	return runErr
}

// Close releases the node's storage.
func (n *Node) Close() error {
	return errors.Join(n.proj.Close(), n.log.Close())
}

// logEvent writes a structured JSON log line for a node event.
func logEvent(instanceName, eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "node"
	data["event_type"] = eventType
	data["instance"] = instanceName

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Node] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
