// Package testutil runs an in-process stash node for tests: miniredis for
// the log, a temporary SQLite projection and an httptest server in front.
package testutil

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/stash/internal/node"
	"github.com/dyluth/stash/pkg/client"
	"github.com/dyluth/stash/pkg/query"
	"github.com/dyluth/stash/pkg/schema"
)

// NodeEnvironment is an isolated node for one test.
type NodeEnvironment struct {
	T      *testing.T
	Ctx    context.Context
	Redis  *miniredis.Miniredis
	Node   *node.Node
	Server *httptest.Server
	Client *client.Client
}

// StartNode starts a node serving schemas. The projector is not running;
// call Sync to apply accepted entries, or RunProjector to follow the log.
func StartNode(t *testing.T, schemas ...*schema.Descriptor) *NodeEnvironment {
	t.Helper()

	mr := miniredis.RunT(t)
	n, err := node.New(node.Config{
		InstanceName:    "test-instance",
		RedisURL:        "redis://" + mr.Addr(),
		DatabasePath:    filepath.Join(t.TempDir(), "projection.db"),
		CatchUpInterval: 20 * time.Millisecond,
	}, schemas...)
	require.NoError(t, err, "Failed to create node")
	t.Cleanup(func() { n.Close() })

	srv := httptest.NewServer(n.Handler())
	t.Cleanup(srv.Close)

	c, err := client.New(srv.URL, client.WithSubmitTimeout(2*time.Second), client.WithQueryTimeout(2*time.Second))
	require.NoError(t, err, "Failed to create client")

	return &NodeEnvironment{
		T:      t,
		Ctx:    context.Background(),
		Redis:  mr,
		Node:   n,
		Server: srv,
		Client: c,
	}
}

// RunProjector follows the log until the test ends.
func (env *NodeEnvironment) RunProjector() {
	ctx, cancel := context.WithCancel(env.Ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = env.Node.RunProjector(ctx)
	}()
	env.T.Cleanup(func() {
		cancel()
		<-done
	})
}

// Sync applies every accepted entry to the projection.
func (env *NodeEnvironment) Sync() int {
	env.T.Helper()
	n, err := env.Node.Projector().Sync(env.Ctx)
	require.NoError(env.T, err, "Projector sync failed")
	return n
}

// WaitForDocuments polls until desc's schema has exactly count documents
// (up to 5 seconds).
func (env *NodeEnvironment) WaitForDocuments(desc *schema.Descriptor, count int) {
	env.T.Helper()

	for i := 0; i < 250; i++ {
		rows, err := env.Client.Rows(env.Ctx, query.Query{SchemaID: desc.ID})
		if err == nil && len(rows) == count {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}

	require.Failf(env.T, "documents not projected", "schema %s did not reach %d documents within 5 seconds", desc.ID, count)
}

// Unreachable stops the HTTP front end; requests from Client then fail
// with client.KindUnreachable.
func (env *NodeEnvironment) Unreachable() {
	env.Server.Close()
}
