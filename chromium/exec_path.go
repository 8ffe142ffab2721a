package chromium

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/liuxd6825/cdptab/common"
	"github.com/liuxd6825/cdptab/env"
	"github.com/liuxd6825/cdptab/log"
)

// pathNames are looked up on PATH.
var pathNames = []string{ //nolint:gochecknoglobals
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
	"chrome.exe", // in case PATHEXT is misconfigured
	"headless_shell",
	"headless-shell",
}

// installLocations returns the conventional install paths for goos.
func installLocations(goos string, lookup env.LookupFunc) []string {
	switch goos {
	case "linux":
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "windows":
		paths := []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
		if local, ok := lookup("LOCALAPPDATA"); ok && local != "" {
			paths = append(paths, filepath.Join(local, `Google\Chrome\Application\chrome.exe`))
		}
		return paths
	}
	return nil
}

// executablePath returns a usable browser binary. It tries the explicit
// path, then PATH, then the install locations of goos. lookPath is
// usually exec.LookPath, which also validates absolute paths.
func executablePath(
	explicit string,
	goos string,
	lookup env.LookupFunc,
	lookPath func(file string) (string, error),
	logger *log.Logger,
) (string, error) {
	tried := make([]string, 0, 16)

	if explicit = strings.TrimSpace(explicit); explicit != "" {
		if p, err := lookPath(explicit); err == nil {
			return p, nil
		}
		logger.Warnf("Allocator:ExecutablePath", "binary %q is not usable, searching the system", explicit)
		tried = append(tried, explicit)
	}
	for _, name := range pathNames {
		if p, err := lookPath(name); err == nil {
			return p, nil
		}
	}
	tried = append(tried, "PATH")
	for _, loc := range installLocations(goos, lookup) {
		if p, err := lookPath(loc); err == nil {
			return p, nil
		}
		tried = append(tried, loc)
	}

	return "", fmt.Errorf("%w (tried %s)", common.ErrBinaryNotFound, strings.Join(tried, ", "))
}
