// Package resolver expands the short document IDs shown in bookmark
// tables into full document IDs.
package resolver

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
)

// MinShortIDLength is the minimum required length for short IDs.
const MinShortIDLength = 6

// base32 is the alphabet of base32-lowercase CIDv1 strings.
const base32 = "abcdefghijklmnopqrstuvwxyz234567"

// IsFullID reports whether id parses as a CID.
func IsFullID(id string) bool {
	_, err := cid.Decode(id)
	return err == nil
}

// ResolveDocumentID resolves id against the known document IDs. A full CID
// is returned unchanged whether or not it is known. Anything shorter is
// matched as a suffix, the part tables display, and must match exactly one
// candidate.
func ResolveDocumentID(id string, candidates []string) (string, error) {
	if IsFullID(id) {
		return id, nil
	}

	if strings.Trim(id, base32) != "" {
		return "", fmt.Errorf("invalid document ID format: must be a CID or a short ID")
	}
	if len(id) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(id))
	}

	var matches []string
	for _, c := range candidates {
		if strings.HasSuffix(c, id) {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: id}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: id, Matches: matches}
	}
}

// NotFoundError indicates no documents matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no bookmarks found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple documents matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d bookmarks", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError creates a user-friendly error message for ambiguous short IDs.
// Lists all matching IDs (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous short ID '%s' matches %d bookmarks:\n", err.ShortID, len(err.Matches))

	displayCount := min(len(err.Matches), 10)
	for i := 0; i < displayCount; i++ {
		fmt.Fprintf(&b, "  %s\n", err.Matches[i])
	}
	if len(err.Matches) > 10 {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-10)
	}

	b.WriteString("\nUse a longer ID to pick one bookmark.")
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
