package node

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/stash/pkg/identity"
	"github.com/dyluth/stash/pkg/operation"
	"github.com/dyluth/stash/pkg/schema"
)

var (
	bookmarksV2 = schema.MustDerive("bookmarks",
		schema.FieldSpec{Name: "url", Type: schema.TypeStr, Required: true},
		schema.FieldSpec{Name: "description", Type: schema.TypeStr, Required: true},
		schema.FieldSpec{Name: "timestamp", Type: schema.TypeInt, Required: true, Default: schema.Ptr(schema.Int(0))},
	)
	bookmarksV1 = schema.MustDerive("bookmarks",
		schema.FieldSpec{Name: "url", Type: schema.TypeStr, Required: true},
		schema.FieldSpec{Name: "description", Type: schema.TypeStr, Required: true},
	)
)

func setupLog(t *testing.T) (*Log, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	l, err := NewLog(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, mr
}

func setupProjection(t *testing.T) *Projection {
	t.Helper()
	p, err := OpenProjection(filepath.Join(t.TempDir(), "projection.db"))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func setupNode(t *testing.T) *Node {
	t.Helper()
	mr := miniredis.RunT(t)
	n, err := New(Config{
		InstanceName:    "test-instance",
		RedisURL:        "redis://" + mr.Addr(),
		DatabasePath:    filepath.Join(t.TempDir(), "projection.db"),
		CatchUpInterval: 20 * time.Millisecond,
	}, bookmarksV1, bookmarksV2)
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })
	return n
}

// runProjector runs the node's projector until the test ends.
func runProjector(t *testing.T, n *Node) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = n.RunProjector(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func keyPair(t *testing.T, b byte) *identity.KeyPair {
	t.Helper()
	kp, err := identity.FromSeed(bytes.Repeat([]byte{b}, 32))
	require.NoError(t, err)
	return kp
}

func signedBookmark(t *testing.T, kp *identity.KeyPair, url, description string, ts int64) *operation.SignedOperation {
	t.Helper()
	op, err := operation.NewBuilder(bookmarksV2).
		Str("url", url).
		Str("description", description).
		Int("timestamp", ts).
		Build()
	require.NoError(t, err)
	signed, err := operation.Sign(kp, op)
	require.NoError(t, err)
	return signed
}
