package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/stash/internal/bookmark"
	"github.com/dyluth/stash/internal/config"
	"github.com/dyluth/stash/internal/instance"
	"github.com/dyluth/stash/internal/testutil"
)

// setupProject writes a stash.yml pointing at a fresh in-process node and
// resets command flags.
func setupProject(t *testing.T, schemaVersion string) *testutil.NodeEnvironment {
	t.Helper()

	env := testutil.StartNode(t, bookmark.Descriptors()...)
	env.RunProjector()

	dir := t.TempDir()
	path := filepath.Join(dir, "stash.yml")
	content := fmt.Sprintf(`version: "1.0"
endpoint: %q
schema: %q
identity:
  key_file: "identity.key"
timeouts:
  response: 5s
`, env.Server.URL, schemaVersion)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	prevColor := color.NoColor
	color.NoColor = true
	configPath = path
	addWait, listOutputFormat, listSearch, listSince, listUntil = false, "default", "", "", ""
	shellOutputFormat = "default"
	t.Cleanup(func() {
		color.NoColor = prevColor
		configPath = config.DefaultFileName
	})
	return env
}

func TestRootCommand_Subcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"add", "down", "get", "init", "list", "shell", "status", "up"} {
		assert.Contains(t, names, want)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	configPath = filepath.Join(t.TempDir(), "stash.yml")
	t.Cleanup(func() { configPath = config.DefaultFileName })

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestAddListGet(t *testing.T) {
	setupProject(t, bookmark.VersionV2)
	ctx := context.Background()

	addWait = true
	var out bytes.Buffer
	require.NoError(t, runAdd(ctx, &out, "https://go.dev", "The Go programming language"))
	require.NoError(t, runAdd(ctx, &out, "https://example.com", "Demo site"))
	assert.Contains(t, out.String(), "✓ Added https://go.dev (")
	assert.Contains(t, out.String(), "✓ Visible in listings\n")

	t.Run("table with search", func(t *testing.T) {
		listSearch = "PROGRAMMING"
		t.Cleanup(func() { listSearch = "" })

		var table bytes.Buffer
		require.NoError(t, runList(ctx, &table))
		assert.Contains(t, table.String(), "Bookmarks in bookmarks:")
		assert.Contains(t, table.String(), "https://go.dev")
		assert.NotContains(t, table.String(), "https://example.com")
		assert.Contains(t, table.String(), "1 bookmark found")
	})

	t.Run("jsonl newest first, then get", func(t *testing.T) {
		listOutputFormat = "jsonl"
		t.Cleanup(func() { listOutputFormat = "default" })

		var lines bytes.Buffer
		require.NoError(t, runList(ctx, &lines))
		rows := strings.Split(strings.TrimSpace(lines.String()), "\n")
		require.Len(t, rows, 2)

		var newest struct {
			Meta struct {
				DocumentID string `json:"document_id"`
			} `json:"meta"`
			Fields struct {
				URL string `json:"url"`
			} `json:"fields"`
		}
		require.NoError(t, json.Unmarshal([]byte(rows[0]), &newest))
		assert.Equal(t, "https://example.com", newest.Fields.URL)

		var got bytes.Buffer
		require.NoError(t, runGet(ctx, &got, newest.Meta.DocumentID))
		assert.Contains(t, got.String(), `"url": "https://example.com"`)
	})

	t.Run("since in the future is empty", func(t *testing.T) {
		listSince = "2999-01-01"
		t.Cleanup(func() { listSince = "" })

		var table bytes.Buffer
		require.NoError(t, runList(ctx, &table))
		assert.Equal(t, "No bookmarks found in bookmarks\n", table.String())
	})
}

// syncBuffer is written by the shell and the controller goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestShell(t *testing.T) {
	setupProject(t, bookmark.VersionV2)

	var out syncBuffer
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetIn(strings.NewReader("add https://go.dev The Go site\nbogus\nquit\n"))
	cmd.SetOut(&out)

	require.NoError(t, runShell(cmd, nil))

	got := out.String()
	assert.Contains(t, got, "No bookmarks found in bookmarks\n")
	assert.Contains(t, got, "✓ Added https://go.dev (")
	assert.Contains(t, got, `unknown command "bogus"`)
	assert.Less(t, strings.Index(got, "No bookmarks found"), strings.Index(got, "✓ Added"))
}

func TestAdd_Errors(t *testing.T) {
	setupProject(t, bookmark.VersionV2)

	err := runAdd(context.Background(), &bytes.Buffer{}, "  ", "no url")
	assert.EqualError(t, err, "URL is required")
}

func TestList_Errors(t *testing.T) {
	setupProject(t, bookmark.VersionV1)
	ctx := context.Background()

	listOutputFormat = "xml"
	assert.EqualError(t, runList(ctx, &bytes.Buffer{}), "invalid output format")
	listOutputFormat = "default"

	listSince = "7d"
	assert.EqualError(t, runList(ctx, &bytes.Buffer{}), "unsupported filter")
	listSince = ""
}

func TestNodeUnreachable(t *testing.T) {
	env := setupProject(t, bookmark.VersionV2)
	env.Unreachable()

	err := runList(context.Background(), &bytes.Buffer{})
	assert.EqualError(t, err, "node unreachable")
}

func TestNewService_PersistsIdentity(t *testing.T) {
	setupProject(t, bookmark.VersionV2)

	cfg, err := loadConfig()
	require.NoError(t, err)

	first, err := newService(cfg)
	require.NoError(t, err)
	second, err := newService(cfg)
	require.NoError(t, err)
	assert.Equal(t, first.Owner(), second.Owner())

	_, err = os.Stat(filepath.Join(filepath.Dir(configPath), "identity.key"))
	assert.NoError(t, err)

	cfg.Identity.KeyFile = ""
	ephemeral, err := newService(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, first.Owner(), ephemeral.Owner())
}

func TestResolvePath(t *testing.T) {
	configPath = "/srv/project/stash.yml"
	t.Cleanup(func() { configPath = config.DefaultFileName })

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	for in, want := range map[string]string{
		"key":            "/srv/project/key",
		".stash/key":     "/srv/project/.stash/key",
		"/etc/stash/key": "/etc/stash/key",
		"~/.stash/key":   filepath.Join(home, ".stash/key"),
	} {
		got, err := resolvePath(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}

func TestTargetInstance(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	generate := func(context.Context) (string, error) { return "default-3", nil }

	name, err := targetInstance(ctx, cfg, "prod", generate)
	require.NoError(t, err)
	assert.Equal(t, "prod", name)

	name, err = targetInstance(ctx, cfg, "", generate)
	require.NoError(t, err)
	assert.Equal(t, "default-3", name)

	cfg.Node.Instance = "configured"
	name, err = targetInstance(ctx, cfg, "", generate)
	require.NoError(t, err)
	assert.Equal(t, "configured", name)

	_, err = targetInstance(ctx, cfg, "Bad_Name", generate)
	assert.EqualError(t, err, "invalid instance name")

	cfg.Node.Instance = ""
	_, err = targetInstance(ctx, cfg, "", nil)
	assert.EqualError(t, err, "no instance name")
}

func TestFormatInstances(t *testing.T) {
	var buf bytes.Buffer
	formatInstances(&buf, nil)
	assert.Equal(t, "\nNo local instances\n", buf.String())

	buf.Reset()
	formatInstances(&buf, []instance.Info{{Name: "default-1", Status: instance.StatusRunning, RedisURL: "redis://localhost:6379"}})
	assert.Equal(t, "\nINSTANCE             STATUS     REDIS\n"+
		"default-1            Running    redis://localhost:6379\n", buf.String())
}
