package syncer

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
	"github.com/dyluth/stash/pkg/bus"
	"github.com/dyluth/stash/pkg/client"
	"github.com/dyluth/stash/pkg/document"
	"github.com/dyluth/stash/pkg/identity"
	"github.com/dyluth/stash/pkg/query"
)

// stubStore is a scriptable Store.
type stubStore struct {
	mu      sync.Mutex
	filters []query.Predicate
	all     func(ctx context.Context) (document.Collection[bookmark.Bookmark], error)
	add     func(ctx context.Context, url, description string) (document.Document[bookmark.Bookmark], error)
}

func (s *stubStore) All(ctx context.Context, filter query.Predicate) (document.Collection[bookmark.Bookmark], error) {
	s.mu.Lock()
	s.filters = append(s.filters, filter)
	s.mu.Unlock()
	if s.all == nil {
		return document.Collection[bookmark.Bookmark]{}, nil
	}
	return s.all(ctx)
}

func (s *stubStore) Add(ctx context.Context, url, description string) (document.Document[bookmark.Bookmark], error) {
	if s.add == nil {
		return document.Document[bookmark.Bookmark]{Fields: bookmark.Bookmark{URL: url, Description: description}}, nil
	}
	return s.add(ctx, url, description)
}

func runWorker(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("worker did not stop")
		}
	})
}

// nextResponse returns the next message on sub that is not a request.
func nextResponse(t *testing.T, sub *bus.Subscription[bookmark.Message]) bookmark.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		msg, err := sub.Recv(ctx)
		require.NoError(t, err, "waiting for response")
		if _, isRequest := msg.(bookmark.Request); !isRequest {
			return msg
		}
	}
}

func TestWorker_RequestAll(t *testing.T) {
	b := bus.New[bookmark.Message](16)
	store := &stubStore{all: func(context.Context) (document.Collection[bookmark.Bookmark], error) {
		return document.Collection[bookmark.Bookmark]{{Fields: bookmark.Bookmark{URL: "https://example.com"}}}, nil
	}}
	w := New(b, store, time.Second)
	observer := b.Subscribe()
	runWorker(t, w)

	req := bookmark.NewRequestAll(bookmark.Search("demo"))
	b.Publish(req)

	resp := nextResponse(t, observer)
	all, ok := resp.(bookmark.ResponseAll)
	require.True(t, ok, "got %T", resp)
	assert.Equal(t, req.ID, all.RequestID)
	require.Len(t, all.Bookmarks, 1)
	assert.Equal(t, "https://example.com", all.Bookmarks[0].Fields.URL)

	store.mu.Lock()
	assert.Equal(t, []query.Predicate{bookmark.Search("demo")}, store.filters)
	store.mu.Unlock()
}

func TestWorker_RespondsInRequestOrder(t *testing.T) {
	b := bus.New[bookmark.Message](16)
	w := New(b, &stubStore{}, time.Second)
	observer := b.Subscribe()

	first := bookmark.NewRequestAdd("https://a.example", "a")
	second := bookmark.NewRequestAdd("https://b.example", "b")
	third := bookmark.NewRequestAll(nil)
	b.Publish(first)
	b.Publish(second)
	b.Publish(third)
	runWorker(t, w)

	assert.Equal(t, first.ID, nextResponse(t, observer).CorrelationID())
	assert.Equal(t, second.ID, nextResponse(t, observer).CorrelationID())
	assert.Equal(t, third.ID, nextResponse(t, observer).CorrelationID())
}

func TestWorker_FailureBoundary(t *testing.T) {
	b := bus.New[bookmark.Message](16)
	calls := 0
	store := &stubStore{add: func(_ context.Context, url, _ string) (document.Document[bookmark.Bookmark], error) {
		calls++
		switch url {
		case "error":
			return document.Document[bookmark.Bookmark]{}, &client.SubmitError{Kind: client.KindUnreachable, Err: errors.New("connection refused")}
		case "panic":
			panic("store exploded")
		}
		return document.Document[bookmark.Bookmark]{Fields: bookmark.Bookmark{URL: url}}, nil
	}}
	w := New(b, store, time.Second)
	observer := b.Subscribe()
	runWorker(t, w)

	t.Run("error becomes RequestFailed", func(t *testing.T) {
		req := bookmark.NewRequestAdd("error", "")
		b.Publish(req)

		failed, ok := nextResponse(t, observer).(bookmark.RequestFailed)
		require.True(t, ok)
		assert.Equal(t, req.ID, failed.RequestID)
		assert.Equal(t, bookmark.KindRequestAdd, failed.Request)
		assert.True(t, client.IsSubmitError(failed.Err, client.KindUnreachable))
	})

	t.Run("panic becomes RequestFailed", func(t *testing.T) {
		req := bookmark.NewRequestAdd("panic", "")
		b.Publish(req)

		failed, ok := nextResponse(t, observer).(bookmark.RequestFailed)
		require.True(t, ok)
		assert.Equal(t, req.ID, failed.RequestID)
		assert.Contains(t, failed.Reason(), "store exploded")
	})

	t.Run("worker keeps serving", func(t *testing.T) {
		req := bookmark.NewRequestAdd("https://ok.example", "")
		b.Publish(req)

		added, ok := nextResponse(t, observer).(bookmark.ResponseAdd)
		require.True(t, ok)
		assert.Equal(t, "https://ok.example", added.Bookmark.Fields.URL)
	})

	require.Eventually(t, func() bool { return w.Stats().Processed == 3 }, 2*time.Second, 10*time.Millisecond)
	stats := w.Stats()
	assert.Equal(t, uint64(2), stats.Failed)
	assert.Equal(t, 3, calls)
}

func TestWorker_RequestTimeout(t *testing.T) {
	b := bus.New[bookmark.Message](16)
	store := &stubStore{all: func(ctx context.Context) (document.Collection[bookmark.Bookmark], error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	w := New(b, store, 50*time.Millisecond)
	observer := b.Subscribe()
	runWorker(t, w)

	req := bookmark.NewRequestAll(nil)
	b.Publish(req)

	failed, ok := nextResponse(t, observer).(bookmark.RequestFailed)
	require.True(t, ok)
	assert.Equal(t, req.ID, failed.RequestID)
	assert.ErrorIs(t, failed.Err, context.DeadlineExceeded)
}

func TestWorker_IgnoresResponsesAndCountsLag(t *testing.T) {
	b := bus.New[bookmark.Message](2)
	w := New(b, &stubStore{}, time.Second)

	// Four requests into a backlog of two: the oldest two are dropped.
	for i := 0; i < 4; i++ {
		b.Publish(bookmark.NewRequestAll(nil))
	}
	runWorker(t, w)

	// The worker sees its own two responses and ignores them.
	require.Eventually(t, func() bool {
		s := w.Stats()
		return s.Processed == 2 && s.Ignored == 2
	}, 2*time.Second, 10*time.Millisecond)

	stats := w.Stats()
	assert.Equal(t, uint64(1), stats.Lagged)
	assert.Equal(t, uint64(2), stats.Missed)
	assert.Zero(t, stats.Failed)
}

func TestWorker_StopsWhenBusCloses(t *testing.T) {
	b := bus.New[bookmark.Message](4)
	w := New(b, &stubStore{}, time.Second)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	require.NoError(t, b.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after bus close")
	}
}

func TestWorker_AgainstNode(t *testing.T) {
	env := testutil.StartNode(t, bookmark.Descriptors()...)
	env.RunProjector()

	kp, err := identity.New()
	require.NoError(t, err)
	svc, err := bookmark.NewService(kp, env.Client, bookmark.V2, nil)
	require.NoError(t, err)

	b := bus.New[bookmark.Message](16)
	w := New(b, svc, 2*time.Second)
	observer := b.Subscribe()
	runWorker(t, w)

	add := bookmark.NewRequestAdd("https://example.com", "Demo site")
	b.Publish(add)
	added, ok := nextResponse(t, observer).(bookmark.ResponseAdd)
	require.True(t, ok)
	assert.Equal(t, kp.PublicKey(), added.Bookmark.Meta.Owner)

	env.WaitForDocuments(bookmark.V2, 1)

	all := bookmark.NewRequestAll(bookmark.Search("DEMO"))
	b.Publish(all)
	listed, ok := nextResponse(t, observer).(bookmark.ResponseAll)
	require.True(t, ok)
	require.Len(t, listed.Bookmarks, 1)
	assert.Equal(t, added.Bookmark, listed.Bookmarks[0])

	empty := bookmark.NewRequestAdd("", "no url")
	b.Publish(empty)
	failed, ok := nextResponse(t, observer).(bookmark.RequestFailed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, bookmark.ErrEmptyURL)
}
