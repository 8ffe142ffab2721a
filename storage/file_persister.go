package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FilePersister writes files such as screenshots to a filesystem.
type FilePersister struct {
	Fs afero.Fs
}

// NewFilePersister returns a persister writing to fs, or to the OS
// filesystem when fs is nil.
func NewFilePersister(fs afero.Fs) *FilePersister {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FilePersister{Fs: fs}
}

// Persist will write the contents of data to the specified path, creating
// parent directories as needed and truncating an existing file.
func (p *FilePersister) Persist(_ context.Context, path string, data io.Reader) (err error) {
	cp := filepath.Clean(path)

	dir := filepath.Dir(cp)
	if err = p.Fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating a local directory %q: %w", dir, err)
	}

	f, err := p.Fs.OpenFile(cp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating a local file %q: %w", cp, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing the local file %q: %w", cp, cerr)
		}
	}()

	bf := bufio.NewWriter(f)

	if _, err := io.Copy(bf, data); err != nil {
		return fmt.Errorf("copying data to file: %w", err)
	}

	if err := bf.Flush(); err != nil {
		return fmt.Errorf("flushing data to disk: %w", err)
	}

	return nil
}
