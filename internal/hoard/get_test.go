package hoard

import (
	"bytes"
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/stash/internal/bookmark"
	"github.com/dyluth/stash/pkg/document"
)

func testCID(t *testing.T, seed string) string {
	t.Helper()
	sum, err := multihash.Sum([]byte(seed), multihash.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, sum).String()
}

func TestGetBookmark(t *testing.T) {
	ctx := context.Background()
	id := testCID(t, "first")
	l := &stubLister{desc: bookmark.V2, bookmarks: document.Collection[bookmark.Bookmark]{
		{Meta: document.Meta{DocumentID: id, ViewID: id, Owner: "owner"}, Fields: bookmark.Bookmark{URL: "https://example.com"}},
	}}

	t.Run("found", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, GetBookmark(ctx, l, id, &buf))
		assert.Contains(t, buf.String(), `"url": "https://example.com"`)
	})

	t.Run("not found", func(t *testing.T) {
		missing := testCID(t, "missing")
		err := GetBookmark(ctx, l, missing, &bytes.Buffer{})
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.Equal(t, "bookmark with ID '"+missing+"' not found", err.Error())
	})

	t.Run("short id", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, GetBookmark(ctx, l, id[len(id)-8:], &buf))
		assert.Contains(t, buf.String(), `"document_id": "`+id+`"`)
	})

	t.Run("short id not found", func(t *testing.T) {
		err := GetBookmark(ctx, l, "zzzzzzzz", &bytes.Buffer{})
		assert.True(t, IsNotFound(err))
	})

	t.Run("short id too short", func(t *testing.T) {
		err := GetBookmark(ctx, l, "abc", &bytes.Buffer{})
		assert.ErrorContains(t, err, "at least 6 characters")
	})

	t.Run("invalid id", func(t *testing.T) {
		err := GetBookmark(ctx, l, "not-a-cid", &bytes.Buffer{})
		assert.ErrorContains(t, err, "invalid document ID format")
		assert.False(t, IsNotFound(err))
	})
}
