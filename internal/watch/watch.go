// Package watch waits for writes to become visible in a node's projection.
package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/stash/internal/bookmark"
	"github.com/dyluth/stash/pkg/document"
	"github.com/dyluth/stash/pkg/query"
	"github.com/dyluth/stash/pkg/schema"
)

// DefaultInterval is how often PollForBookmark queries the node.
const DefaultInterval = 200 * time.Millisecond

// Lister queries bookmarks. *bookmark.Service implements it.
type Lister interface {
	All(ctx context.Context, filter query.Predicate) (document.Collection[bookmark.Bookmark], error)
}

// PollForBookmark polls until the document written for b is returned by a
// query, or timeout elapses. It returns the projected document.
func PollForBookmark(ctx context.Context, l Lister, b document.Document[bookmark.Bookmark], interval, timeout time.Duration) (document.Document[bookmark.Bookmark], error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)
	filter := query.Equals{Field: bookmark.FieldURL, Value: schema.String(b.Fields.URL)}

	for {
		docs, err := l.All(ctx, filter)
		if err != nil {
			return document.Document[bookmark.Bookmark]{}, fmt.Errorf("failed to query for bookmark: %w", err)
		}
		for _, d := range docs {
			if d.Meta.DocumentID == b.Meta.DocumentID {
				return d, nil
			}
		}

		select {
		case <-ctx.Done():
			return document.Document[bookmark.Bookmark]{}, ctx.Err()
		case <-timeoutCh:
			return document.Document[bookmark.Bookmark]{}, fmt.Errorf("timeout waiting for bookmark %s after %v", b.Meta.DocumentID, timeout)
		case <-ticker.C:
		}
	}
}
