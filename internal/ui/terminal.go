package ui

import (
	"errors"
	"io"

	"github.com/dyluth/stash/internal/bookmark"
	"github.com/dyluth/stash/internal/hoard"
	"github.com/dyluth/stash/internal/printer"
	"github.com/dyluth/stash/pkg/document"
)

// Terminal renders to a text stream using the hoard formats.
type Terminal struct {
	out    io.Writer
	format hoard.OutputFormat
	title  string
}

// NewTerminal creates a renderer writing to out. title names the bookmark
// collection in table headers.
func NewTerminal(out io.Writer, format hoard.OutputFormat, title string) *Terminal {
	if format == "" {
		format = hoard.OutputFormatDefault
	}
	return &Terminal{out: out, format: format, title: title}
}

func (t *Terminal) BookmarksUpdated(bookmarks document.Collection[bookmark.Bookmark]) {
	if t.format == hoard.OutputFormatJSONL {
		if err := hoard.FormatJSONL(t.out, bookmarks); err != nil {
			printer.FailureTo(t.out, "%v\n", err)
		}
		return
	}
	hoard.FormatTable(t.out, bookmarks, t.title)
}

func (t *Terminal) BookmarkAdded(b document.Document[bookmark.Bookmark]) {
	if t.format == hoard.OutputFormatJSONL {
		if err := hoard.FormatJSONL(t.out, document.Collection[bookmark.Bookmark]{b}); err != nil {
			printer.FailureTo(t.out, "%v\n", err)
		}
		return
	}
	printer.SuccessTo(t.out, "Added %s (%s)\n", b.Fields.URL, b.Meta.DocumentID)
}

func (t *Terminal) OperationFailed(request bookmark.Kind, err error) {
	if errors.Is(err, ErrNoResponse) {
		printer.FailureTo(t.out, "%s timed out: %v\n", request, err)
		return
	}
	printer.FailureTo(t.out, "%s failed: %v\n", request, err)
}

func (t *Terminal) Missed(n uint64) {
	printer.WarningTo(t.out, "Missed %d update(s); run 'list' to refresh\n", n)
}
