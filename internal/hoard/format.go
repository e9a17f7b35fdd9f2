package hoard

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/stash/internal/bookmark"
	"github.com/dyluth/stash/pkg/document"
)

// FormatTable writes bookmarks as a formatted table to the provided writer.
// The table includes columns: ID, OWNER, AGE, URL and DESCRIPTION (truncated).
// Returns the number of bookmarks formatted.
func FormatTable(w io.Writer, bookmarks document.Collection[bookmark.Bookmark], title string) int {
	if len(bookmarks) == 0 {
		fmt.Fprintf(w, "No bookmarks found in %s\n", title)
		return 0
	}

	fmt.Fprintf(w, "Bookmarks in %s:\n\n", title)

	fmt.Fprintf(w, "%-10s %-8s %-8s %-40s %s\n",
		"ID", "OWNER", "AGE", "URL", "DESCRIPTION")
	fmt.Fprintf(w, "%-10s %-8s %-8s %-40s %s\n",
		"----------", "--------", "--------", "----------------------------------------", "----------------------------------------")

	for _, b := range bookmarks {
		fmt.Fprintf(w, "%-10s %-8s %-8s %-40s %s\n",
			formatID(b.Meta.DocumentID),
			formatOwner(string(b.Meta.Owner)),
			formatTimestamp(b.Fields.Timestamp),
			formatURL(b.Fields.URL),
			formatDescription(b.Fields.Description),
		)
	}

	countMsg := "bookmark"
	if len(bookmarks) != 1 {
		countMsg = "bookmarks"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(bookmarks), countMsg)

	return len(bookmarks)
}

// FormatJSONL writes bookmarks as line-delimited JSON (JSONL), one document
// per line, for processing with tools like jq.
func FormatJSONL(w io.Writer, bookmarks document.Collection[bookmark.Bookmark]) error {
	for _, b := range bookmarks {
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to marshal bookmark to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", string(data)); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}

	return nil
}

// FormatSingleJSON writes one bookmark as pretty-printed JSON.
func FormatSingleJSON(w io.Writer, b document.Document[bookmark.Bookmark]) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal bookmark to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)

	return nil
}

// formatID shows the last 8 characters of a document ID; CIDs share their
// leading characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}

// formatOwner truncates the owner's public key to its first 8 hex characters.
func formatOwner(owner string) string {
	if owner == "" {
		return "-"
	}
	if len(owner) > 8 {
		return owner[:8]
	}
	return owner
}

// formatURL truncates URLs to 40 characters.
func formatURL(url string) string {
	if len(url) > 40 {
		return url[:37] + "..."
	}
	return url
}

// formatDescription shows the first non-empty line, max 40 characters.
// Empty descriptions return "-".
func formatDescription(description string) string {
	var firstLine string
	for _, line := range strings.Split(description, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			firstLine = trimmed
			break
		}
	}

	if firstLine == "" {
		return "-"
	}

	runes := []rune(firstLine)
	if len(runes) > 40 {
		return string(runes[:37]) + "..."
	}
	return firstLine
}

// formatTimestamp formats a Unix timestamp in milliseconds as relative time
// like "2m ago". Bookmarks without a timestamp show "-".
func formatTimestamp(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := time.Since(time.UnixMilli(timestampMs))

	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
