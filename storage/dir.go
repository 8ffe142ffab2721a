// Package storage manages the files cdptab owns on disk: the browser
// user-data directory and captured screenshots.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const tempDirPrefix = "cdptab-chromium-"

// Dir is a user-data directory for a browser process.
// A directory created by Make with no explicit path is temporary and is
// removed by Cleanup. An explicit directory is never removed.
type Dir struct {
	Dir string
	Fs  afero.Fs

	remove bool
}

// Make sets up the directory. If dir is empty, a temporary directory is
// created under tmpDir (the OS default when empty). Otherwise dir is
// expanded (a leading ~ is the user's home) and created if missing.
func (d *Dir) Make(tmpDir, dir string) error {
	fs := d.fs()

	if dir != "" {
		expanded, err := ExpandHome(dir)
		if err != nil {
			return err
		}
		if err := fs.MkdirAll(expanded, 0o755); err != nil {
			return fmt.Errorf("creating user data directory %q: %w", expanded, err)
		}
		d.Dir = expanded
		return nil
	}

	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	name, err := afero.TempDir(fs, tmpDir, tempDirPrefix)
	if err != nil {
		return fmt.Errorf("creating temporary user data directory: %w", err)
	}
	d.Dir = name
	d.remove = true

	return nil
}

// IsTemp reports whether Cleanup will remove the directory.
func (d *Dir) IsTemp() bool {
	return d.remove
}

// Cleanup removes a temporary directory. It is a no-op otherwise.
func (d *Dir) Cleanup() error {
	if !d.remove || d.Dir == "" {
		return nil
	}
	if err := d.fs().RemoveAll(d.Dir); err != nil {
		return fmt.Errorf("removing user data directory %q: %w", d.Dir, err)
	}
	d.remove = false

	return nil
}

func (d *Dir) fs() afero.Fs {
	if d.Fs == nil {
		d.Fs = afero.NewOsFs()
	}
	return d.Fs
}

// ExpandHome replaces a leading ~ in path with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %q: %w", path, err)
	}

	return filepath.Join(home, path[1:]), nil
}
