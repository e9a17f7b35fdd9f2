package bookmark

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dyluth/stash/pkg/client"
	"github.com/dyluth/stash/pkg/document"
	"github.com/dyluth/stash/pkg/identity"
	"github.com/dyluth/stash/pkg/operation"
	"github.com/dyluth/stash/pkg/query"
	"github.com/dyluth/stash/pkg/schema"
)

// ErrEmptyURL is returned when a bookmark is added without a URL.
var ErrEmptyURL = errors.New("bookmark url is required")

// Clock returns the current time. It supplies the timestamp that keeps
// otherwise identical writes distinct.
type Clock func() time.Time

// Service reads and writes bookmarks on behalf of one identity.
// It is owned by the synchronization worker.
type Service struct {
	keys   *identity.KeyPair
	client *client.Client
	desc   *schema.Descriptor
	clock  Clock

	mu   sync.Mutex
	last int64
}

// NewService creates a service that writes and reads desc with the given
// identity. A nil clock uses time.Now.
func NewService(keys *identity.KeyPair, c *client.Client, desc *schema.Descriptor, clock Clock) (*Service, error) {
	if keys == nil {
		return nil, fmt.Errorf("identity is required")
	}
	if c == nil {
		return nil, fmt.Errorf("client is required")
	}
	if desc == nil {
		return nil, fmt.Errorf("schema descriptor is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{keys: keys, client: c, desc: desc, clock: clock}, nil
}

// Schema returns the descriptor the service reads and writes.
func (s *Service) Schema() *schema.Descriptor {
	return s.desc
}

// Owner returns the public key new bookmarks are attributed to.
func (s *Service) Owner() identity.PublicKey {
	return s.keys.PublicKey()
}

// All returns the bookmarks matching filter (nil for all) in listing order.
func (s *Service) All(ctx context.Context, filter query.Predicate) (document.Collection[Bookmark], error) {
	return client.QueryAll[Bookmark](ctx, s.client, s.desc, filter, OrderFor(s.desc))
}

// Add writes a bookmark and returns its local echo: a document built from
// the entry reference and the fields as signed, before the node's projection
// has caught up. A blank URL is rejected without contacting the node.
func (s *Service) Add(ctx context.Context, url, description string) (document.Document[Bookmark], error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return document.Document[Bookmark]{}, ErrEmptyURL
	}

	b := operation.NewBuilder(s.desc).
		Str(FieldURL, url).
		Str(FieldDescription, description)
	if _, ok := s.desc.Field(FieldTimestamp); ok {
		b.Int(FieldTimestamp, s.nextTimestamp())
	}

	op, err := b.Build()
	if err != nil {
		return document.Document[Bookmark]{}, err
	}

	ref, err := s.client.Submit(ctx, s.keys, op)
	if err != nil {
		return document.Document[Bookmark]{}, err
	}

	values := op.Values()
	fields := Bookmark{
		URL:         values[FieldURL].Str,
		Description: values[FieldDescription].Str,
		Timestamp:   values[FieldTimestamp].Int,
	}
	return document.FromEntry(ref, s.keys.PublicKey(), fields)
}

// nextTimestamp returns the clock in unix millis, bumped when needed so that
// it strictly increases across calls.
func (s *Service) nextTimestamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.clock().UnixMilli()
	if ts <= s.last {
		ts = s.last + 1
	}
	s.last = ts
	return ts
}
