package cmd

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/liuxd6825/cdptab/errext/exitcodes"
	"github.com/liuxd6825/cdptab/tests/ws"
)

func TestTabsCommand(t *testing.T) {
	t.Parallel()

	srv := ws.NewServer(t)
	tab := srv.Tab("https://example.com/")
	t.Cleanup(func() {
		assert.Zero(t, srv.Browser.CreatedTabs(), "listing tabs never creates one")
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		ts := newGlobalTestState(t)
		ts.run(0, "tabs", portArg(srv.Port()), "-o", "json")

		var out tabsOutput
		require.NoError(t, json.Unmarshal([]byte(ts.Stdout.String()), &out))
		assert.Equal(t, "HeadlessChrome/120.0.0.0", out.Browser)
		require.Len(t, out.Tabs, 2)
		assert.Equal(t, tab.ID, out.Tabs[1].ID)
		assert.Equal(t, "https://example.com/", out.Tabs[1].URL)
		assert.Equal(t, srv.WebSocketURL(tab.ID), out.Tabs[1].WebSocketURL)
	})

	t.Run("yaml", func(t *testing.T) {
		t.Parallel()

		ts := newGlobalTestState(t)
		ts.run(0, "tabs", portArg(srv.Port()), "-o", "yaml")

		var out tabsOutput
		require.NoError(t, yaml.Unmarshal([]byte(ts.Stdout.String()), &out))
		require.Len(t, out.Tabs, 2)
		assert.Equal(t, "page", out.Tabs[1].Type)
	})

	t.Run("text", func(t *testing.T) {
		t.Parallel()

		ts := newGlobalTestState(t)
		ts.run(0, "tabs", portArg(srv.Port()))
		out := ts.Stdout.String()
		assert.Contains(t, out, "HeadlessChrome/120.0.0.0")
		assert.Contains(t, out, tab.ID)
		assert.Contains(t, out, "https://example.com/")
	})

	t.Run("unknown_format", func(t *testing.T) {
		t.Parallel()

		ts := newGlobalTestState(t)
		ts.run(exitcodes.InvalidConfig, "tabs", portArg(srv.Port()), "-o", "xml")
		assert.True(t, ts.LoggerHook.Contains(`unknown output format "xml"`))
	})

	t.Run("no_browser", func(t *testing.T) {
		t.Parallel()

		ts := newGlobalTestState(t)
		ts.run(exitcodes.ConnectionFailed, "tabs", portArg(closedPort(t)))
		assert.Empty(t, ts.Stdout.String())
	})
}

func TestEvalCommand(t *testing.T) {
	t.Parallel()

	for name, tt := range map[string]struct {
		script string
		code   exitcodes.ExitCode
		stdout string
	}{
		"sum":       {script: "1+2", stdout: "3\n"},
		"throw":     {script: `throw new Error("bad")`, code: exitcodes.ScriptException},
		"undefined": {script: "void 0", stdout: "null\n"},
	} {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := ws.NewServer(t)
			ts := newGlobalTestState(t)
			ts.run(tt.code, "eval", portArg(srv.Port()), tt.script)
			assert.Equal(t, tt.stdout, ts.Stdout.String())
		})
	}

	t.Run("no_script", func(t *testing.T) {
		t.Parallel()

		ts := newGlobalTestState(t)
		// cobra argument errors carry no exit code.
		ts.ExpectedExitCode = -1
		ts.CmdArgs = []string{"cdptab", "eval"}
		ExecuteWithGlobalState(ts.GlobalState)
		assert.True(t, ts.LoggerHook.Contains("accepts 1 arg(s), received 0"))
	})
}

func TestEvalCommandParams(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []any{float64(2), "x", map[string]any{"a": true}, "not json"},
		parseArgs([]string{"2", `"x"`, `{"a":true}`, "not json"}))
	assert.Empty(t, parseArgs(nil))
}

func TestNavigateCommand(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()

		srv := ws.NewServer(t)
		ts := newGlobalTestState(t)
		ts.run(0, "navigate", portArg(srv.Port()), "https://example.com/")
		assert.Equal(t, "https://example.com/", srv.Browser.Tabs()[0].URL)
		assert.Empty(t, srv.Browser.ClosedTabs())
	})

	t.Run("unresolvable", func(t *testing.T) {
		t.Parallel()

		srv := ws.NewServer(t)
		ts := newGlobalTestState(t)
		ts.run(exitcodes.CommandFailed, "navigate", portArg(srv.Port()), "https://nowhere.invalid/")
		assert.True(t, ts.LoggerHook.Contains("net::ERR_NAME_NOT_RESOLVED"))
	})

	t.Run("wait_for", func(t *testing.T) {
		t.Parallel()

		srv := ws.NewServer(t, ws.WithElements("#login"))
		ts := newGlobalTestState(t)
		ts.run(0, "navigate", portArg(srv.Port()), "--wait-for", "#login", "--timeout", "1s",
			"https://example.com/login")
	})

	t.Run("wait_timeout", func(t *testing.T) {
		t.Parallel()

		srv := ws.NewServer(t)
		ts := newGlobalTestState(t)
		ts.run(exitcodes.WaitTimeout, "navigate", portArg(srv.Port()), "--wait-for", "#never",
			"--timeout", "50ms", "https://example.com/")
	})

	t.Run("wait_for_extension", func(t *testing.T) {
		t.Parallel()

		ts := newGlobalTestState(t)
		ts.run(exitcodes.InvalidConfig, "navigate", "--backend", "extension", "--wait-for", "#x",
			"https://example.com/")
		assert.True(t, ts.LoggerHook.Contains(`the "navigate --wait-for" command is not supported by the extension backend`))
	})
}

func TestClickAndTypeCommands(t *testing.T) {
	t.Parallel()

	srv := ws.NewServer(t, ws.WithElements("#go", "input[name=q]"))

	for name, tt := range map[string]struct {
		args []string
		code exitcodes.ExitCode
	}{
		"click":         {args: []string{"click", "#go"}},
		"click_url":     {args: []string{"click", "--url", "https://example.com/", "#go"}},
		"click_missing": {args: []string{"click", "#nope"}, code: exitcodes.ScriptException},
		"type":          {args: []string{"type", "input[name=q]", "hello"}},
		"type_missing":  {args: []string{"type", "#nope", "hello"}, code: exitcodes.ScriptException},
	} {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ts := newGlobalTestState(t)
			ts.run(tt.code, append(tt.args, portArg(srv.Port()))...)
		})
	}
}

func TestScreenshotCommand(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()

		srv := ws.NewServer(t)
		ts := newGlobalTestState(t)
		ts.run(0, "screenshot", portArg(srv.Port()), "--url", "https://example.com/", "/shots/example.png")

		data, err := afero.ReadFile(ts.FS, "/shots/example.png")
		require.NoError(t, err)
		assert.Equal(t, ws.PNG, data)
		assert.True(t, ts.LoggerHook.Contains("screenshot saved to /shots/example.png"))
		assert.Equal(t, "https://example.com/", srv.Browser.Tabs()[0].URL)
	})

	t.Run("read_only", func(t *testing.T) {
		t.Parallel()

		srv := ws.NewServer(t)
		ts := newGlobalTestState(t)
		ts.FS = afero.NewReadOnlyFs(afero.NewMemMapFs())
		ts.run(exitcodes.FileWriteFailed, "screenshot", portArg(srv.Port()), "/shots/example.png")
	})
}

func TestContentCommand(t *testing.T) {
	t.Parallel()

	srv := ws.NewServer(t)

	for name, tt := range map[string]struct {
		args []string
		want string
	}{
		"document": {args: nil, want: ws.DefaultContent + "\n"},
		"html":     {args: []string{"--selector", "h1"}, want: `<h1 id="title">Hello</h1>` + "\n"},
		"text":     {args: []string{"--selector", "#title", "--text"}, want: "Hello\n"},
		"no_match": {args: []string{"--selector", "table"}, want: ""},
	} {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ts := newGlobalTestState(t)
			ts.run(0, append([]string{"content", portArg(srv.Port())}, tt.args...)...)
			assert.Equal(t, tt.want, ts.Stdout.String())
		})
	}
}

func TestExtract(t *testing.T) {
	t.Parallel()

	html := `<ul><li>one</li><li> two </li></ul>`
	got, err := extract(html, "li", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, got)

	got, err = extract(html, "li", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"<li>one</li>", "<li> two </li>"}, got)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncate("short", 40))
	assert.Equal(t, "https://exa…", truncate("https://example.com/", 12))
	assert.Equal(t, "héllo wörld", truncate("héllo wörld", 11))
	assert.Equal(t, "abc", truncate("abc", 1))
}
