// Package hoard lists and shows bookmarks for the stash CLI.
package hoard

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/stash/internal/bookmark"
	"github.com/dyluth/stash/pkg/document"
	"github.com/dyluth/stash/pkg/query"
	"github.com/dyluth/stash/pkg/schema"
)

// OutputFormat specifies how to format the bookmark list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format with truncated fields
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete documents as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, "":
		return OutputFormatDefault, nil
	case OutputFormatJSONL:
		return OutputFormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want default or jsonl)", s)
	}
}

// Lister reads bookmarks. *bookmark.Service implements it.
type Lister interface {
	Schema() *schema.Descriptor
	All(ctx context.Context, filter query.Predicate) (document.Collection[bookmark.Bookmark], error)
}

// FilterCriteria defines filtering options for the list command.
// All filters are ANDed together.
type FilterCriteria struct {
	Search           string // Description substring, case-insensitive, empty = no filter
	SinceTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	UntilTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
}

// Predicate returns the node-side filter for fc, or nil when fc filters
// nothing. The until bound has no node-side predicate and is applied by
// matchesFilter.
func (fc *FilterCriteria) Predicate(desc *schema.Descriptor) (query.Predicate, error) {
	if fc == nil {
		return nil, nil
	}
	if (fc.SinceTimestampMs > 0 || fc.UntilTimestampMs > 0) && !hasTimestamp(desc) {
		return nil, fmt.Errorf("schema %s has no %s field; time filters are not supported", desc.ID, bookmark.FieldTimestamp)
	}

	var preds []query.Predicate
	if fc.Search != "" {
		preds = append(preds, bookmark.Search(fc.Search))
	}
	if fc.SinceTimestampMs > 0 {
		preds = append(preds, query.AtLeast{Field: bookmark.FieldTimestamp, Min: fc.SinceTimestampMs})
	}

	switch len(preds) {
	case 0:
		return nil, nil
	case 1:
		return preds[0], nil
	default:
		return query.And{Predicates: preds}, nil
	}
}

// matchesFilter applies the bounds the node cannot.
func (fc *FilterCriteria) matchesFilter(b document.Document[bookmark.Bookmark]) bool {
	if fc == nil {
		return true
	}
	if fc.UntilTimestampMs > 0 && b.Fields.Timestamp > fc.UntilTimestampMs {
		return false
	}
	return true
}

func hasTimestamp(desc *schema.Descriptor) bool {
	_, ok := desc.Field(bookmark.FieldTimestamp)
	return ok
}

// ListBookmarks queries the node and writes the matching bookmarks to w in
// listing order.
func ListBookmarks(ctx context.Context, l Lister, format OutputFormat, filters *FilterCriteria, w io.Writer) error {
	desc := l.Schema()
	pred, err := filters.Predicate(desc)
	if err != nil {
		return err
	}

	all, err := l.All(ctx, pred)
	if err != nil {
		return fmt.Errorf("failed to query bookmarks: %w", err)
	}

	bookmarks := make(document.Collection[bookmark.Bookmark], 0, len(all))
	for _, b := range all {
		if filters.matchesFilter(b) {
			bookmarks = append(bookmarks, b)
		}
	}

	switch format {
	case OutputFormatDefault, "":
		FormatTable(w, bookmarks, desc.ID.Name())
	case OutputFormatJSONL:
		if err := FormatJSONL(w, bookmarks); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
