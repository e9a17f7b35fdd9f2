package hoard

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dyluth/stash/internal/resolver"
)

// GetBookmark looks up one bookmark by document ID, full or short, and
// writes it as pretty-printed JSON to w.
func GetBookmark(ctx context.Context, l Lister, documentID string, w io.Writer) error {
	// Reject malformed IDs before querying the node.
	if _, err := resolver.ResolveDocumentID(documentID, nil); err != nil && !resolver.IsNotFoundError(err) {
		return err
	}

	all, err := l.All(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch bookmarks: %w", err)
	}

	ids := make([]string, 0, len(all))
	for _, b := range all {
		ids = append(ids, b.Meta.DocumentID)
	}
	resolved, err := resolver.ResolveDocumentID(documentID, ids)
	if err != nil {
		if resolver.IsNotFoundError(err) {
			return &BookmarkNotFoundError{DocumentID: documentID}
		}
		return err
	}

	for _, b := range all {
		if b.Meta.DocumentID == resolved {
			if err := FormatSingleJSON(w, b); err != nil {
				return fmt.Errorf("failed to format bookmark: %w", err)
			}
			return nil
		}
	}

	return &BookmarkNotFoundError{DocumentID: documentID}
}

// BookmarkNotFoundError reports a document ID with no bookmark in the
// projection. A bookmark added moments ago may not be projected yet.
type BookmarkNotFoundError struct {
	DocumentID string
}

func (e *BookmarkNotFoundError) Error() string {
	return fmt.Sprintf("bookmark with ID '%s' not found", e.DocumentID)
}

// IsNotFound returns true if the error is a BookmarkNotFoundError.
func IsNotFound(err error) bool {
	var nf *BookmarkNotFoundError
	return errors.As(err, &nf)
}
