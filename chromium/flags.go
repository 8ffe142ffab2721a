package chromium

import (
	"strconv"
	"strings"

	"github.com/liuxd6825/cdptab/common"
)

// After Puppeteer's and Playwright's default behavior.
var defaultArgs = []string{ //nolint:gochecknoglobals
	"--disable-background-networking",
	"--enable-features=NetworkService,NetworkServiceInProcess",
	"--disable-background-timer-throttling",
	"--disable-backgrounding-occluded-windows",
	"--disable-breakpad",
	"--disable-component-extensions-with-background-pages",
	"--disable-default-apps",
	"--disable-dev-shm-usage",
	"--disable-hang-monitor",
	"--disable-ipc-flooding-protection",
	"--disable-popup-blocking",
	"--disable-prompt-on-repost",
	"--disable-renderer-backgrounding",
	"--force-color-profile=srgb",
	"--metrics-recording-only",
	"--password-store=basic",
	"--use-mock-keychain",
	"--no-service-autorun",
}

var dockerArgs = []string{ //nolint:gochecknoglobals
	"--no-sandbox",
	"--disable-gpu-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--no-xshm",
	"--no-zygote",
	"--single-process",
}

var headlessArgs = []string{ //nolint:gochecknoglobals
	"--headless=new",
	"--hide-scrollbars",
	"--mute-audio",
}

var disableSecurityArgs = []string{ //nolint:gochecknoglobals
	"--disable-web-security",
	"--disable-site-isolation-trials",
	"--disable-features=IsolateOrigins,site-per-process",
}

var deterministicRenderingArgs = []string{ //nolint:gochecknoglobals
	"--deterministic-mode",
	"--js-flags=--random-seed=1157259159",
	"--force-device-scale-factor=2",
	"--enable-webgl",
	"--font-render-hinting=none",
	"--force-color-profile=srgb",
}

// composeArgs builds the browser command line, group by group, keeping
// the first occurrence of each argument.
func composeArgs(opts *common.BrowserOptions, port int, userDataDir string, isRoot bool) []string {
	groups := [][]string{
		{
			"--remote-debugging-port=" + strconv.Itoa(port),
			"--no-first-run",
			"--no-default-browser-check",
		},
	}
	if userDataDir != "" {
		groups = append(groups, []string{"--user-data-dir=" + userDataDir})
	}
	groups = append(groups, defaultArgs)

	switch {
	case opts.InDocker:
		groups = append(groups, dockerArgs)
	case isRoot:
		// Chrome refuses to run as root with the sandbox on.
		groups = append(groups, []string{"--no-sandbox"})
	}
	if opts.Headless {
		groups = append(groups, headlessArgs)
	}
	if opts.DisableSecurity {
		groups = append(groups, disableSecurityArgs)
	}
	if opts.DeterministicRendering {
		groups = append(groups, deterministicRenderingArgs)
	}
	groups = append(groups, normalizeArgs(opts.ExtraArgs))

	return dedupeArgs(groups...)
}

// normalizeArgs turns user arguments into --name or --name=value form.
// Quotes around values are dropped and blanks are skipped.
func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		name, val, hasVal := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !strings.HasPrefix(name, "-") {
			name = "--" + name
		}
		if hasVal {
			out = append(out, name+"="+common.TrimQuotes(strings.TrimSpace(val)))
			continue
		}
		out = append(out, name)
	}
	return out
}

func dedupeArgs(groups ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, g := range groups {
		for _, arg := range g {
			if _, ok := seen[arg]; ok {
				continue
			}
			seen[arg] = struct{}{}
			out = append(out, arg)
		}
	}
	return out
}
