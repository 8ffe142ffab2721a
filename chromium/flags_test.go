package chromium

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/liuxd6825/cdptab/common"
)

func TestComposeArgs(t *testing.T) {
	t.Parallel()

	for name, tt := range map[string]struct {
		opts     func(*common.BrowserOptions)
		isRoot   bool
		contains []string
		excludes []string
	}{
		"defaults": {
			contains: []string{"--remote-debugging-port=9333", "--user-data-dir=/tmp/ud", "--no-first-run", "--disable-breakpad"},
			excludes: []string{"--no-sandbox", "--headless=new", "--disable-web-security", "--deterministic-mode"},
		},
		"root_without_docker": {
			isRoot:   true,
			contains: []string{"--no-sandbox"},
			excludes: []string{"--single-process"},
		},
		"docker": {
			opts:     func(o *common.BrowserOptions) { o.InDocker = true },
			contains: []string{"--no-sandbox", "--disable-setuid-sandbox", "--no-zygote", "--single-process"},
		},
		"headless": {
			opts:     func(o *common.BrowserOptions) { o.Headless = true },
			contains: []string{"--headless=new", "--hide-scrollbars", "--mute-audio"},
		},
		"disable_security": {
			opts:     func(o *common.BrowserOptions) { o.DisableSecurity = true },
			contains: []string{"--disable-web-security", "--disable-site-isolation-trials"},
		},
		"deterministic": {
			opts:     func(o *common.BrowserOptions) { o.DeterministicRendering = true },
			contains: []string{"--deterministic-mode", "--font-render-hinting=none"},
		},
		"extra_args_normalized": {
			opts: func(o *common.BrowserOptions) {
				o.ExtraArgs = []string{"lang=en-US", " --window-size = '1280,720' ", "", "-v", `--proxy-server="http://p:3128"`}
			},
			contains: []string{"--lang=en-US", "--window-size=1280,720", "-v", "--proxy-server=http://p:3128"},
			excludes: []string{""},
		},
	} {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			opts := common.NewBrowserOptions()
			if tt.opts != nil {
				tt.opts(opts)
			}
			args := composeArgs(opts, 9333, "/tmp/ud", tt.isRoot)
			for _, a := range tt.contains {
				assert.Contains(t, args, a)
			}
			for _, a := range tt.excludes {
				assert.NotContains(t, args, a)
			}
			assertNoDuplicates(t, args)
		})
	}
}

func TestComposeArgsOrder(t *testing.T) {
	t.Parallel()

	opts := common.NewBrowserOptions()
	opts.InDocker = true
	opts.Headless = true
	opts.ExtraArgs = []string{"--no-sandbox", "--custom"}

	args := composeArgs(opts, 9222, "", false)
	assert.Equal(t, "--remote-debugging-port=9222", args[0])
	assert.Equal(t, "--custom", args[len(args)-1])
	assert.Less(t, indexOf(args, "--no-sandbox"), indexOf(args, "--headless=new"))
	for _, a := range args {
		assert.NotContains(t, a, "--user-data-dir")
	}
	assertNoDuplicates(t, args)
}

func TestNormalizeArgs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{}, normalizeArgs(nil))
	assert.Equal(t,
		[]string{"--a", "--b=c", "--d=e f", "-x=1"},
		normalizeArgs([]string{"a", "--b=c", "d='e f'", "  ", "-x=1"}),
	)
}

func assertNoDuplicates(t *testing.T, args []string) {
	t.Helper()

	seen := make(map[string]bool, len(args))
	for _, a := range args {
		assert.False(t, seen[a], "duplicate argument %q", a)
		seen[a] = true
	}
}

func indexOf(args []string, arg string) int {
	for i, a := range args {
		if a == arg {
			return i
		}
	}
	return -1
}
