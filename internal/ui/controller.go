// Package ui is the interface context: it turns user actions into bus
// requests and renders the responses addressed to it.
//
// The controller's event loop runs on a single goroutine and never performs
// network I/O; all of that happens in the synchronization worker.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dyluth/stash/internal/bookmark"
	"github.com/dyluth/stash/pkg/bus"
	"github.com/dyluth/stash/pkg/document"
)

// DefaultResponseTimeout is how long a request may go unanswered before it
// is reported as failed.
const DefaultResponseTimeout = 30 * time.Second

// ErrEmptyURL is returned by Add when no URL is given.
var ErrEmptyURL = bookmark.ErrEmptyURL

// ErrNoResponse is reported for a request that was not answered before its
// deadline.
var ErrNoResponse = errors.New("no response before deadline")

// Renderer displays the outcome of requests.
type Renderer interface {
	// BookmarksUpdated replaces the displayed list.
	BookmarksUpdated(bookmarks document.Collection[bookmark.Bookmark])

	// BookmarkAdded appends a newly written bookmark.
	BookmarkAdded(b document.Document[bookmark.Bookmark])

	// OperationFailed reports a request that failed or went unanswered.
	OperationFailed(request bookmark.Kind, err error)

	// Missed reports that n bus messages were dropped before the controller
	// could read them; the displayed list may be stale.
	Missed(n uint64)
}

type pendingRequest struct {
	kind     bookmark.Kind
	deadline time.Time
}

// Controller publishes requests for user actions and routes responses to a
// Renderer.
type Controller struct {
	bus     *bus.Bus[bookmark.Message]
	sub     *bus.Subscription[bookmark.Message]
	timeout time.Duration

	mu      sync.Mutex
	pending map[uuid.UUID]pendingRequest
	ignored uint64
}

// NewController subscribes to b. Requests not answered within timeout are
// reported with ErrNoResponse; a non-positive timeout uses
// DefaultResponseTimeout.
func NewController(b *bus.Bus[bookmark.Message], timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}
	return &Controller{
		bus:     b,
		sub:     b.Subscribe(),
		timeout: timeout,
		pending: make(map[uuid.UUID]pendingRequest),
	}
}

// Refresh requests the full bookmark list.
func (c *Controller) Refresh() uuid.UUID {
	return c.publish(bookmark.NewRequestAll(nil))
}

// Search requests the bookmarks whose description contains text. An empty
// search is a refresh.
func (c *Controller) Search(text string) uuid.UUID {
	text = strings.TrimSpace(text)
	if text == "" {
		return c.Refresh()
	}
	return c.publish(bookmark.NewRequestAll(bookmark.Search(text)))
}

// Add requests a new bookmark. An empty URL is rejected here and nothing is
// published.
func (c *Controller) Add(url, description string) (uuid.UUID, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return uuid.Nil, ErrEmptyURL
	}
	return c.publish(bookmark.NewRequestAdd(url, strings.TrimSpace(description))), nil
}

func (c *Controller) publish(req bookmark.Request) uuid.UUID {
	c.mu.Lock()
	c.pending[req.CorrelationID()] = pendingRequest{kind: req.Kind(), deadline: time.Now().Add(c.timeout)}
	c.mu.Unlock()

	c.bus.Publish(req)
	return req.CorrelationID()
}

// Pending returns the number of requests awaiting a response.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Ignored returns how many messages the controller has skipped because it
// does not own them.
func (c *Controller) Ignored() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ignored
}

// Run routes responses to r until ctx is cancelled or the bus is closed.
func (c *Controller) Run(ctx context.Context, r Renderer) error {
	defer c.sub.Close()

	sweep := c.timeout / 10
	if sweep < 10*time.Millisecond {
		sweep = 10 * time.Millisecond
	}
	if sweep > 250*time.Millisecond {
		sweep = 250 * time.Millisecond
	}

	for {
		recvCtx, cancel := context.WithTimeout(ctx, sweep)
		msg, err := c.sub.Recv(recvCtx)
		cancel()

		switch {
		case err == nil:
			c.dispatch(msg, r)
		case errors.Is(err, bus.ErrClosed):
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			if missed, ok := bus.IsLagged(err); ok {
				log.Printf("[UI] [WARN] Missed %d message(s)", missed)
				r.Missed(missed)
			}
		}

		c.expire(r, time.Now())
	}
}

// dispatch hands msg to r if it answers one of this controller's requests.
func (c *Controller) dispatch(msg bookmark.Message, r Renderer) {
	if _, isRequest := msg.(bookmark.Request); isRequest {
		c.ignore()
		return
	}

	c.mu.Lock()
	_, owned := c.pending[msg.CorrelationID()]
	delete(c.pending, msg.CorrelationID())
	c.mu.Unlock()

	if !owned {
		c.ignore()
		log.Printf("[UI] [DEBUG] Ignoring %s for request %s", msg.Kind(), msg.CorrelationID())
		return
	}

	switch m := msg.(type) {
	case bookmark.ResponseAll:
		r.BookmarksUpdated(m.Bookmarks)
	case bookmark.ResponseAdd:
		r.BookmarkAdded(m.Bookmark)
	case bookmark.RequestFailed:
		r.OperationFailed(m.Request, m.Err)
	default:
		c.ignore()
	}
}

func (c *Controller) ignore() {
	c.mu.Lock()
	c.ignored++
	c.mu.Unlock()
}

// expire reports every pending request whose deadline has passed, oldest
// deadline first.
func (c *Controller) expire(r Renderer, now time.Time) {
	type expired struct {
		id uuid.UUID
		pendingRequest
	}

	c.mu.Lock()
	var due []expired
	for id, p := range c.pending {
		if !now.Before(p.deadline) {
			due = append(due, expired{id: id, pendingRequest: p})
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, e := range due {
		r.OperationFailed(e.kind, fmt.Errorf("%s %s: %w", e.kind, e.id, ErrNoResponse))
	}
}
