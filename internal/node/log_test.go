package node

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLog_EmptyInstance(t *testing.T) {
	_, err := NewLog(nil, "")
	assert.ErrorContains(t, err, "instance name cannot be empty")
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "stash:default-1:entry:bafk", EntryKey("default-1", "bafk"))
	assert.Equal(t, "stash:default-1:author:ab:seq", AuthorSeqKey("default-1", "ab"))
	assert.Equal(t, "stash:default-1:log", LogStreamKey("default-1"))
	assert.Equal(t, "stash:default-1:entry_events", EntryEventsChannel("default-1"))
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	l, mr := setupLog(t)
	alice := keyPair(t, 1)
	bob := keyPair(t, 2)

	first := signedBookmark(t, alice, "https://a.example", "a", 1)
	entry, created, err := l.Append(ctx, first, bookmarksV2.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(1), entry.Seq)

	ref, err := first.Reference()
	require.NoError(t, err)
	assert.Equal(t, ref.DocumentID, entry.Hash)
	assert.True(t, mr.Exists(EntryKey("test-instance", entry.Hash)))

	t.Run("sequence is per author", func(t *testing.T) {
		second, created, err := l.Append(ctx, signedBookmark(t, alice, "https://b.example", "b", 2), bookmarksV2.ID)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, int64(2), second.Seq)

		other, _, err := l.Append(ctx, signedBookmark(t, bob, "https://c.example", "c", 3), bookmarksV2.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), other.Seq)
	})

	t.Run("duplicate append is a no-op", func(t *testing.T) {
		before, err := l.Len(ctx)
		require.NoError(t, err)

		again, created, err := l.Append(ctx, first, bookmarksV2.ID)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, entry.Hash, again.Hash)
		assert.Equal(t, entry.Seq, again.Seq)

		after, err := l.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("get entry round trips", func(t *testing.T) {
		got, err := l.GetEntry(ctx, entry.Hash)
		require.NoError(t, err)
		assert.Equal(t, entry.Operation, got.Operation)
		assert.Equal(t, entry.Signature, got.Signature)
		assert.Equal(t, alice.PublicKey(), got.Author)
		assert.NoError(t, got.Signed().Verify())
	})

	t.Run("missing entry", func(t *testing.T) {
		_, err := l.GetEntry(ctx, "bafkmissing")
		assert.True(t, IsNotFound(err))
	})
}

func TestAppend_UnreadableExistingEntry(t *testing.T) {
	ctx := context.Background()
	l, mr := setupLog(t)
	signed := signedBookmark(t, keyPair(t, 1), "https://a.example", "a", 1)
	ref, err := signed.Reference()
	require.NoError(t, err)

	// A hash holding only its key field, as an interrupted writer would leave.
	mr.HSet(EntryKey("test-instance", ref.DocumentID), "hash", ref.DocumentID)

	entry, created, err := l.Append(ctx, signed, bookmarksV2.ID)
	assert.ErrorIs(t, err, ErrEntryConflict)
	assert.Nil(t, entry)
	assert.False(t, created)

	n, err := l.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, mr.Exists(AuthorSeqKey("test-instance", string(signed.PublicKey))))
}

func TestAppend_CancelledContextLeavesNoClaim(t *testing.T) {
	l, mr := setupLog(t)
	signed := signedBookmark(t, keyPair(t, 1), "https://a.example", "a", 1)
	ref, err := signed.Reference()
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = l.Append(cancelled, signed, bookmarksV2.ID)
	require.Error(t, err)
	assert.False(t, mr.Exists(EntryKey("test-instance", ref.DocumentID)))

	entry, created, err := l.Append(context.Background(), signed, bookmarksV2.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(1), entry.Seq)
}

func TestEntries(t *testing.T) {
	ctx := context.Background()
	l, _ := setupLog(t)
	kp := keyPair(t, 1)

	var hashes []string
	for i := int64(1); i <= 5; i++ {
		e, _, err := l.Append(ctx, signedBookmark(t, kp, "https://example.com", "demo", i), bookmarksV2.ID)
		require.NoError(t, err)
		hashes = append(hashes, e.Hash)
	}

	all, err := l.Entries(ctx, "", 100)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, pos := range all {
		assert.Equal(t, hashes[i], pos.Hash)
	}

	page, err := l.Entries(ctx, all[1].StreamID, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, hashes[2], page[0].Hash)
	assert.Equal(t, hashes[3], page[1].Hash)

	tail, err := l.Entries(ctx, all[4].StreamID, 10)
	require.NoError(t, err)
	assert.Empty(t, tail)
}

func TestSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l, _ := setupLog(t)

	sub, err := l.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	entry, _, err := l.Append(ctx, signedBookmark(t, keyPair(t, 1), "https://example.com", "demo", 1), bookmarksV2.ID)
	require.NoError(t, err)

	select {
	case hash := <-sub.Events():
		assert.Equal(t, entry.Hash, hash)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for entry event")
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
}

func TestHashToEntry_Invalid(t *testing.T) {
	kp := keyPair(t, 1)
	valid := EntryToHash(&Entry{
		Hash:      "bafk",
		Author:    kp.PublicKey(),
		Seq:       1,
		SchemaID:  bookmarksV2.ID,
		Operation: []byte("{}"),
		Signature: []byte("sig"),
	})

	toStrings := func(m map[string]interface{}) map[string]string {
		out := make(map[string]string, len(m))
		for k, v := range m {
			switch x := v.(type) {
			case string:
				out[k] = x
			case int64:
				out[k] = strconv.FormatInt(x, 10)
			}
		}
		return out
	}

	entry, err := HashToEntry(toStrings(valid))
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), entry.Operation)

	for _, field := range []string{"seq", "operation", "author", "schema_id"} {
		h := toStrings(valid)
		h[field] = "!!"
		_, err := HashToEntry(h)
		assert.Error(t, err, field)
	}
}

