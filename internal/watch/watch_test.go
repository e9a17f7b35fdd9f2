package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/stash/internal/bookmark"
	"github.com/dyluth/stash/internal/testutil"
	"github.com/dyluth/stash/pkg/document"
	"github.com/dyluth/stash/pkg/identity"
	"github.com/dyluth/stash/pkg/query"
	"github.com/dyluth/stash/pkg/schema"
)

// delayedLister returns docs only after visibleAfter calls.
type delayedLister struct {
	mu           sync.Mutex
	calls        int
	visibleAfter int
	docs         document.Collection[bookmark.Bookmark]
	filters      []query.Predicate
	err          error
}

func (l *delayedLister) All(_ context.Context, filter query.Predicate) (document.Collection[bookmark.Bookmark], error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.filters = append(l.filters, filter)
	if l.err != nil {
		return nil, l.err
	}
	if l.calls <= l.visibleAfter {
		return document.Collection[bookmark.Bookmark]{}, nil
	}
	return l.docs, nil
}

func doc(id, url string) document.Document[bookmark.Bookmark] {
	return document.Document[bookmark.Bookmark]{
		Meta:   document.Meta{DocumentID: id},
		Fields: bookmark.Bookmark{URL: url},
	}
}

func TestPollForBookmark(t *testing.T) {
	ctx := context.Background()
	target := doc("doc-2", "https://example.com")

	t.Run("returns bookmark when found immediately", func(t *testing.T) {
		l := &delayedLister{docs: document.Collection[bookmark.Bookmark]{target}}

		got, err := PollForBookmark(ctx, l, target, 10*time.Millisecond, time.Second)
		require.NoError(t, err)
		assert.Equal(t, target, got)
		assert.Equal(t, 1, l.calls)
		assert.Equal(t, query.Equals{Field: bookmark.FieldURL, Value: schema.String("https://example.com")}, l.filters[0])
	})

	t.Run("waits until the projection catches up", func(t *testing.T) {
		other := doc("doc-1", "https://example.com")
		l := &delayedLister{visibleAfter: 3, docs: document.Collection[bookmark.Bookmark]{other, target}}

		got, err := PollForBookmark(ctx, l, target, 10*time.Millisecond, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "doc-2", got.Meta.DocumentID)
		assert.Equal(t, 4, l.calls)
	})

	t.Run("times out", func(t *testing.T) {
		l := &delayedLister{visibleAfter: 1 << 30}

		_, err := PollForBookmark(ctx, l, target, 10*time.Millisecond, 50*time.Millisecond)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout waiting for bookmark doc-2")
	})

	t.Run("query errors are returned", func(t *testing.T) {
		l := &delayedLister{err: errors.New("node unreachable")}

		_, err := PollForBookmark(ctx, l, target, 10*time.Millisecond, time.Second)
		assert.ErrorContains(t, err, "node unreachable")
	})

	t.Run("context cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		l := &delayedLister{visibleAfter: 1 << 30}

		_, err := PollForBookmark(cctx, l, target, 10*time.Millisecond, time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPollForBookmark_AgainstNode(t *testing.T) {
	env := testutil.StartNode(t, bookmark.Descriptors()...)

	kp, err := identity.New()
	require.NoError(t, err)
	svc, err := bookmark.NewService(kp, env.Client, bookmark.V2, nil)
	require.NoError(t, err)

	added, err := svc.Add(context.Background(), "https://example.com", "Demo site")
	require.NoError(t, err)

	// The projector is not running yet, so the first queries miss.
	go func() {
		time.Sleep(100 * time.Millisecond)
		_, _ = env.Node.Projector().Sync(env.Ctx)
	}()

	got, err := PollForBookmark(context.Background(), svc, added, 20*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, added, got)
}
