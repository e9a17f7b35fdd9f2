// Package bus is an in-process broadcast channel between independently
// scheduled execution contexts.
//
// Every live subscriber receives every message in publish order. Each
// subscriber has its own bounded ring buffer: Publish never blocks, and a
// subscriber that falls behind loses its oldest messages. The next Recv then
// reports how many were lost with a *LaggedError before delivery resumes.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the per-subscriber backlog used when New is given a
// non-positive capacity.
const DefaultCapacity = 16

// ErrClosed is returned by Recv once the bus or the subscription is closed
// and the backlog is drained.
var ErrClosed = errors.New("bus closed")

// LaggedError reports that a subscriber's backlog overflowed and Missed
// messages were dropped.
type LaggedError struct {
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("subscriber lagged: %d message(s) dropped", e.Missed)
}

// IsLagged reports whether err is a *LaggedError and returns the number of
// missed messages.
func IsLagged(err error) (uint64, bool) {
	var lagged *LaggedError
	if errors.As(err, &lagged) {
		return lagged.Missed, true
	}
	return 0, false
}

// Bus fans published messages out to every subscriber.
// It is safe for concurrent use.
type Bus[M any] struct {
	mu       sync.Mutex
	capacity int
	subs     map[*Subscription[M]]struct{}
	closed   bool
}

// New creates a bus whose subscribers buffer up to capacity messages.
func New[M any](capacity int) *Bus[M] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus[M]{
		capacity: capacity,
		subs:     make(map[*Subscription[M]]struct{}),
	}
}

// Capacity returns the per-subscriber backlog size.
func (b *Bus[M]) Capacity() int {
	return b.capacity
}

// Publish delivers m to every live subscriber and returns how many there
// were. With no subscribers the message is discarded and 0 is returned.
// Publish never blocks on a slow subscriber.
func (b *Bus[M]) Publish(m M) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0
	}
	for sub := range b.subs {
		sub.push(m)
	}
	return len(b.subs)
}

// Subscribe registers a new subscriber. It only sees messages published
// after this call. A subscription on a closed bus is already closed.
func (b *Bus[M]) Subscribe() *Subscription[M] {
	sub := &Subscription[M]{
		bus:    b,
		buf:    make([]M, b.capacity),
		notify: make(chan struct{}, 1),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Subscribers returns the number of live subscriptions.
func (b *Bus[M]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription. Subscribers drain their backlog and then
// receive ErrClosed. Safe to call multiple times.
func (b *Bus[M]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for sub := range b.subs {
		sub.shutdown()
		delete(b.subs, sub)
	}
	return nil
}

func (b *Bus[M]) unsubscribe(sub *Subscription[M]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
}

// Subscription is one subscriber's view of the bus.
// Recv must be called from a single goroutine.
type Subscription[M any] struct {
	bus *Bus[M]

	mu     sync.Mutex
	buf    []M
	head   int
	size   int
	missed uint64
	closed bool

	notify chan struct{}
	once   sync.Once
}

func (s *Subscription[M]) push(m M) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	capacity := len(s.buf)
	if s.size == capacity {
		// Overwrite the oldest message.
		s.buf[s.head] = m
		s.head = (s.head + 1) % capacity
		s.missed++
	} else {
		s.buf[(s.head+s.size)%capacity] = m
		s.size++
	}
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription[M]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription[M]) shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

// next pops the next item. ok is false when nothing is buffered.
func (s *Subscription[M]) next() (m M, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.missed > 0 {
		missed := s.missed
		s.missed = 0
		return m, true, &LaggedError{Missed: missed}
	}
	if s.size > 0 {
		var zero M
		m = s.buf[s.head]
		s.buf[s.head] = zero
		s.head = (s.head + 1) % len(s.buf)
		s.size--
		return m, true, nil
	}
	if s.closed {
		return m, true, ErrClosed
	}
	return m, false, nil
}

// Recv returns the next message, blocking until one is published, the
// subscription is closed or ctx is done. After an overflow it returns a
// *LaggedError once and then continues with the oldest retained message.
func (s *Subscription[M]) Recv(ctx context.Context) (M, error) {
	for {
		if m, ok, err := s.next(); ok {
			return m, err
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			var zero M
			return zero, ctx.Err()
		}
	}
}

// TryRecv is the non-blocking form of Recv. ok is false when no message or
// error is pending.
func (s *Subscription[M]) TryRecv() (m M, ok bool, err error) {
	return s.next()
}

// Pending returns the number of buffered messages.
func (s *Subscription[M]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Close detaches the subscription from the bus. Buffered messages are
// discarded. Safe to call multiple times.
func (s *Subscription[M]) Close() error {
	s.once.Do(func() {
		s.bus.unsubscribe(s)
		s.mu.Lock()
		s.closed = true
		s.size = 0
		s.missed = 0
		s.mu.Unlock()
		s.wake()
	})
	return nil
}
