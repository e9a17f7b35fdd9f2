package bookmark

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/stash/internal/testutil"
	"github.com/dyluth/stash/pkg/client"
	"github.com/dyluth/stash/pkg/identity"
)

func fixedClock(ms int64) Clock {
	return func() time.Time { return time.UnixMilli(ms) }
}

func setupService(t *testing.T, env *testutil.NodeEnvironment, desc string, clock Clock) *Service {
	t.Helper()
	kp, err := identity.New()
	require.NoError(t, err)
	d, err := ForVersion(desc)
	require.NoError(t, err)
	s, err := NewService(kp, env.Client, d, clock)
	require.NoError(t, err)
	return s
}

func TestNewService_Validation(t *testing.T) {
	kp, err := identity.New()
	require.NoError(t, err)
	c, err := client.New("http://127.0.0.1:2020")
	require.NoError(t, err)

	_, err = NewService(nil, c, V2, nil)
	assert.ErrorContains(t, err, "identity is required")
	_, err = NewService(kp, nil, V2, nil)
	assert.ErrorContains(t, err, "client is required")
	_, err = NewService(kp, c, nil, nil)
	assert.ErrorContains(t, err, "schema descriptor is required")

	s, err := NewService(kp, c, V2, nil)
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), s.Owner())
	assert.Equal(t, V2, s.Schema())
}

func TestAdd_EmptyURL(t *testing.T) {
	env := testutil.StartNode(t, Descriptors()...)
	s := setupService(t, env, VersionV2, nil)

	for _, url := range []string{"", "   ", "\t\n"} {
		_, err := s.Add(context.Background(), url, "no url")
		assert.True(t, errors.Is(err, ErrEmptyURL), "url %q", url)
	}

	n, err := env.Node.Log().Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAdd_LocalEcho(t *testing.T) {
	ctx := context.Background()
	env := testutil.StartNode(t, Descriptors()...)
	s := setupService(t, env, VersionV2, fixedClock(1700000000000))

	echo, err := s.Add(ctx, "https://example.com", "Demo site")
	require.NoError(t, err)
	assert.Equal(t, s.Owner(), echo.Meta.Owner)
	assert.Equal(t, echo.Meta.DocumentID, echo.Meta.ViewID)
	assert.Equal(t, Bookmark{URL: "https://example.com", Description: "Demo site", Timestamp: 1700000000000}, echo.Fields)

	// The echo is available before the projection has the document.
	before, err := s.All(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, before)

	env.Sync()

	after, err := s.All(ctx, nil)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, echo, after[0])
}

func TestAdd_EchoMatchesProjectedText(t *testing.T) {
	ctx := context.Background()
	env := testutil.StartNode(t, Descriptors()...)
	s := setupService(t, env, VersionV2, fixedClock(1700000000000))

	// Decomposed input is signed in NFC; the echo must carry the same text.
	echo, err := s.Add(ctx, "  https://example.com/cafe\u0301 ", "cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/caf\u00e9", echo.Fields.URL)
	assert.Equal(t, "caf\u00e9", echo.Fields.Description)

	env.Sync()

	all, err := s.All(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, echo, all[0])
}

func TestAdd_TimestampsStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	env := testutil.StartNode(t, Descriptors()...)
	s := setupService(t, env, VersionV2, fixedClock(1000))

	// Identical input under a stopped clock still produces distinct documents.
	first, err := s.Add(ctx, "https://example.com", "same")
	require.NoError(t, err)
	second, err := s.Add(ctx, "https://example.com", "same")
	require.NoError(t, err)

	assert.Equal(t, int64(1000), first.Fields.Timestamp)
	assert.Equal(t, int64(1001), second.Fields.Timestamp)
	assert.NotEqual(t, first.Meta.DocumentID, second.Meta.DocumentID)
}

func TestAll_OrderAndFilter(t *testing.T) {
	ctx := context.Background()
	env := testutil.StartNode(t, Descriptors()...)
	s := setupService(t, env, VersionV2, nil)

	for _, b := range []Bookmark{
		{URL: "https://example.com", Description: "Demo site"},
		{URL: "https://golang.org", Description: "Go"},
		{URL: "https://demo.example", Description: "another DEMO"},
	} {
		_, err := s.Add(ctx, b.URL, b.Description)
		require.NoError(t, err)
	}
	env.Sync()

	all, err := s.All(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "https://demo.example", all[0].Fields.URL)
	assert.Equal(t, "https://golang.org", all[1].Fields.URL)
	assert.Equal(t, "https://example.com", all[2].Fields.URL)

	demo, err := s.All(ctx, Search("demo"))
	require.NoError(t, err)
	require.Len(t, demo, 2)
	assert.Equal(t, "https://demo.example", demo[0].Fields.URL)
	assert.Equal(t, "https://example.com", demo[1].Fields.URL)
}

func TestV1Service(t *testing.T) {
	ctx := context.Background()
	env := testutil.StartNode(t, Descriptors()...)
	v1 := setupService(t, env, VersionV1, fixedClock(5000))
	v2 := setupService(t, env, VersionV2, fixedClock(5000))

	echo, err := v1.Add(ctx, "https://old.example", "written by v1")
	require.NoError(t, err)
	assert.Zero(t, echo.Fields.Timestamp)

	_, err = v2.Add(ctx, "https://new.example", "written by v2")
	require.NoError(t, err)
	env.Sync()

	old, err := v1.All(ctx, nil)
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, echo, old[0])

	current, err := v2.All(ctx, nil)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "https://new.example", current[0].Fields.URL)
}

func TestServiceErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("schema not deployed", func(t *testing.T) {
		env := testutil.StartNode(t, V2)
		s := setupService(t, env, VersionV1, nil)

		_, err := s.Add(ctx, "https://example.com", "demo")
		assert.True(t, client.IsSubmitError(err, client.KindRejected))

		_, err = s.All(ctx, nil)
		assert.True(t, client.IsQueryError(err, client.KindRejected))
	})

	t.Run("node unreachable", func(t *testing.T) {
		env := testutil.StartNode(t, Descriptors()...)
		s := setupService(t, env, VersionV2, nil)
		env.Unreachable()

		_, err := s.Add(ctx, "https://example.com", "demo")
		assert.True(t, client.IsSubmitError(err, client.KindUnreachable))

		_, err = s.All(ctx, nil)
		assert.True(t, client.IsQueryError(err, client.KindUnreachable))
	})
}
