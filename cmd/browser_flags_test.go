package cmd

import (
	"strconv"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"

	"github.com/liuxd6825/cdptab/common"
	"github.com/liuxd6825/cdptab/errext"
	"github.com/liuxd6825/cdptab/errext/exitcodes"
	"github.com/liuxd6825/cdptab/tests/ws"
)

func TestBrowserConfigFromFlags(t *testing.T) {
	t.Parallel()

	t.Run("unset", func(t *testing.T) {
		t.Parallel()

		flags := browserFlagSet()
		require.NoError(t, flags.Parse(nil))
		cfg, err := browserConfigFromFlags(flags)
		require.NoError(t, err)
		assert.Equal(t, common.BrowserConfig{}, cfg, "defaults of the flag set are not a config layer")
	})

	t.Run("set", func(t *testing.T) {
		t.Parallel()

		flags := browserFlagSet()
		require.NoError(t, flags.Parse([]string{
			"--backend=playwright", "--binary=/opt/chrome", "--headless", "--keep-alive=false",
			"--arg=--lang=en", "--arg", "--mute-audio", "--tab-url=example", "--port=9333",
			"--startup-timeout=1500ms", "--user-data-dir=/tmp/profile",
		}))
		cfg, err := browserConfigFromFlags(flags)
		require.NoError(t, err)

		assert.Equal(t, null.StringFrom("playwright"), cfg.Backend)
		assert.Equal(t, null.StringFrom("/opt/chrome"), cfg.BinaryPath)
		assert.Equal(t, null.BoolFrom(true), cfg.Headless)
		assert.Equal(t, null.BoolFrom(false), cfg.KeepAlive)
		assert.False(t, cfg.DisableSecurity.Valid)
		assert.Equal(t, []string{"--lang=en", "--mute-audio"}, cfg.ExtraArgs)
		assert.Equal(t, null.StringFrom("example"), cfg.TargetTabURL)
		assert.Equal(t, null.IntFrom(9333), cfg.DebugPort)
		assert.Equal(t, null.IntFrom(2), cfg.StartupTimeout, "partial seconds round up")
		assert.Equal(t, null.StringFrom("/tmp/profile"), cfg.UserDataDir)
		assert.False(t, cfg.ExtensionURL.Valid)
	})
}

func TestGetBrowserOptions(t *testing.T) {
	t.Parallel()

	for name, tt := range map[string]struct {
		file  string
		env   map[string]string
		args  []string
		check func(*testing.T, *common.BrowserOptions)
		code  exitcodes.ExitCode
	}{
		"defaults": {
			check: func(t *testing.T, o *common.BrowserOptions) {
				assert.Equal(t, common.NewBrowserOptions(), o)
			},
		},
		"file": {
			file: `{"debugPort": 9400, "headless": true, "extraArgs": ["--a"]}`,
			check: func(t *testing.T, o *common.BrowserOptions) {
				assert.Equal(t, 9400, o.DebugPort)
				assert.True(t, o.Headless)
				assert.Equal(t, []string{"--a"}, o.ExtraArgs)
			},
		},
		"env_over_file": {
			file: `{"debugPort": 9400, "headless": true}`,
			env:  map[string]string{"CDPTAB_DEBUG_PORT": "9500", "CDPTAB_EXTRA_ARGS": "--x,--y"},
			check: func(t *testing.T, o *common.BrowserOptions) {
				assert.Equal(t, 9500, o.DebugPort)
				assert.True(t, o.Headless)
				assert.Equal(t, []string{"--x", "--y"}, o.ExtraArgs)
			},
		},
		"flags_over_env": {
			env:  map[string]string{"CDPTAB_DEBUG_PORT": "9500", "CDPTAB_HEADLESS": "true"},
			args: []string{"--port=9600", "--headless=false", "--startup-timeout=5s"},
			check: func(t *testing.T, o *common.BrowserOptions) {
				assert.Equal(t, 9600, o.DebugPort)
				assert.False(t, o.Headless)
				assert.Equal(t, 5*time.Second, o.StartupTimeout)
			},
		},
		"legacy_in_docker": {
			env: map[string]string{"IN_DOCKER": "Yes"},
			check: func(t *testing.T, o *common.BrowserOptions) {
				assert.True(t, o.InDocker)
			},
		},
		"bad_file":        {file: `{"debugPort": "x"`, code: exitcodes.InvalidConfig},
		"unknown_key":     {file: `{"port": 1}`, code: exitcodes.InvalidConfig},
		"bad_env":         {env: map[string]string{"CDPTAB_HEADLESS": "maybe"}, code: exitcodes.InvalidConfig},
		"port_range":      {args: []string{"--port=70000"}, code: exitcodes.InvalidConfig},
		"timeout":         {args: []string{"--startup-timeout=0s"}, code: exitcodes.InvalidConfig},
		"unknown_backend": {args: []string{"--backend=webdriver"}, code: exitcodes.InvalidConfig},
	} {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ts := newGlobalTestState(t)
			if tt.env != nil {
				ts.Env = tt.env
			}
			if tt.file != "" {
				ts.Flags.ConfigFilePath = "/etc/cdptab.json"
				require.NoError(t, afero.WriteFile(ts.FS, ts.Flags.ConfigFilePath, []byte(tt.file), 0o644))
			}
			flags := browserFlagSet()
			require.NoError(t, flags.Parse(tt.args))

			opts, err := getBrowserOptions(ts.GlobalState, flags)
			if tt.code != 0 {
				var ecerr errext.HasExitCode
				require.ErrorAs(t, err, &ecerr)
				assert.Equal(t, tt.code, ecerr.ExitCode())
				return
			}
			require.NoError(t, err)
			tt.check(t, opts)
		})
	}
}

func TestGetBrowserOptionsMissingConfig(t *testing.T) {
	t.Parallel()

	ts := newGlobalTestState(t)
	flags := browserFlagSet()

	// The default location may be missing.
	_, err := getBrowserOptions(ts.GlobalState, flags)
	require.NoError(t, err)

	// An explicit one may not.
	ts.Flags.ConfigFilePath = "/nope.json"
	_, err = getBrowserOptions(ts.GlobalState, flags)
	require.ErrorContains(t, err, `reading config file "/nope.json"`)
}

func TestConfigFileDrivesCommand(t *testing.T) {
	t.Parallel()

	srv := ws.NewServer(t)
	ts := newGlobalTestState(t)
	cfg := `{"debugPort": ` + strconv.Itoa(srv.Port()) + `}`
	require.NoError(t, afero.WriteFile(ts.FS, "/cfg.json", []byte(cfg), 0o644))

	ts.run(0, "--config", "/cfg.json", "eval", "40+2")
	assert.Equal(t, "42\n", ts.Stdout.String())
}
