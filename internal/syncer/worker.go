// Package syncer runs the synchronization core: a single worker that takes
// bookmark requests off the bus, talks to the node and publishes the
// responses.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dyluth/stash/internal/bookmark"
	"github.com/dyluth/stash/pkg/bus"
	"github.com/dyluth/stash/pkg/document"
	"github.com/dyluth/stash/pkg/query"
)

// DefaultRequestTimeout bounds each request when the worker is created with
// a non-positive timeout.
const DefaultRequestTimeout = 15 * time.Second

// Store is the bookmark storage the worker drives. *bookmark.Service
// implements it against a node.
type Store interface {
	All(ctx context.Context, filter query.Predicate) (document.Collection[bookmark.Bookmark], error)
	Add(ctx context.Context, url, description string) (document.Document[bookmark.Bookmark], error)
}

// Stats counts what the worker has seen since it was created.
type Stats struct {
	// Processed is the number of requests answered, successfully or not
	Processed uint64

	// Failed is the number of requests answered with RequestFailed
	Failed uint64

	// Ignored is the number of messages the worker does not own
	Ignored uint64

	// Lagged is the number of times the worker's backlog overflowed
	Lagged uint64

	// Missed is the total number of messages lost to overflow
	Missed uint64
}

// Worker processes bookmark requests one at a time in arrival order.
// Every request is answered with exactly one response: its success variant
// or RequestFailed.
type Worker struct {
	bus     *bus.Bus[bookmark.Message]
	sub     *bus.Subscription[bookmark.Message]
	store   Store
	timeout time.Duration

	mu    sync.Mutex
	stats Stats
}

// New creates a worker and subscribes it to b immediately, so requests
// published before Run starts are queued rather than lost.
func New(b *bus.Bus[bookmark.Message], store Store, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Worker{
		bus:     b,
		sub:     b.Subscribe(),
		store:   store,
		timeout: timeout,
	}
}

// Run processes messages until ctx is cancelled or the bus is closed.
func (w *Worker) Run(ctx context.Context) error {
	defer w.sub.Close()

	log.Printf("[Worker] Started (request timeout %s)", w.timeout)

	for {
		msg, err := w.sub.Recv(ctx)
		if err != nil {
			if missed, ok := bus.IsLagged(err); ok {
				w.recordLag(missed)
				log.Printf("[Worker] [WARN] Backlog overflowed, %d message(s) dropped", missed)
				continue
			}
			if errors.Is(err, bus.ErrClosed) {
				log.Printf("[Worker] Bus closed")
				return nil
			}
			if ctx.Err() != nil {
				log.Printf("[Worker] Shutting down...")
				return nil
			}
			return fmt.Errorf("worker receive failed: %w", err)
		}

		req, ok := msg.(bookmark.Request)
		if !ok {
			w.update(func(s *Stats) { s.Ignored++ })
			log.Printf("[Worker] [DEBUG] Ignoring %s for request %s", msg.Kind(), msg.CorrelationID())
			continue
		}

		start := time.Now()
		resp := w.handle(ctx, req)
		w.bus.Publish(resp)

		if failed, isFailure := resp.(bookmark.RequestFailed); isFailure {
			w.update(func(s *Stats) { s.Processed++; s.Failed++ })
			logEvent("request_failed", map[string]interface{}{
				"request_id":  req.CorrelationID().String(),
				"kind":        string(req.Kind()),
				"error":       failed.Reason(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			continue
		}

		w.update(func(s *Stats) { s.Processed++ })
		logEvent("request_processed", map[string]interface{}{
			"request_id":  req.CorrelationID().String(),
			"kind":        string(req.Kind()),
			"response":    string(resp.Kind()),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}

// handle runs one request inside a failure boundary: errors and panics
// become RequestFailed.
func (w *Worker) handle(ctx context.Context, req bookmark.Request) (resp bookmark.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Worker] [ERROR] Panic while handling %s %s: %v", req.Kind(), req.CorrelationID(), r)
			resp = failure(req, fmt.Errorf("panic: %v", r))
		}
	}()

	reqCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	switch r := req.(type) {
	case bookmark.RequestAll:
		docs, err := w.store.All(reqCtx, r.Filter)
		if err != nil {
			return failure(req, err)
		}
		return bookmark.ResponseAll{RequestID: r.ID, Bookmarks: docs}

	case bookmark.RequestAdd:
		doc, err := w.store.Add(reqCtx, r.URL, r.Description)
		if err != nil {
			return failure(req, err)
		}
		return bookmark.ResponseAdd{RequestID: r.ID, Bookmark: doc}

	default:
		return failure(req, fmt.Errorf("unsupported request %s", req.Kind()))
	}
}

func failure(req bookmark.Request, err error) bookmark.RequestFailed {
	return bookmark.RequestFailed{RequestID: req.CorrelationID(), Request: req.Kind(), Err: err}
}

// Stats returns a snapshot of the worker's counters.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Worker) update(fn func(*Stats)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.stats)
}

func (w *Worker) recordLag(missed uint64) {
	w.update(func(s *Stats) {
		s.Lagged++
		s.Missed += missed
	})
}

// logEvent writes a structured JSON log line for a worker event.
func logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "worker"
	data["event_type"] = eventType

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Worker] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
