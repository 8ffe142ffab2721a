// Package browser builds a Browser for the configured backend.
package browser

import (
	"fmt"
	"net/http"

	"github.com/spf13/afero"

	"github.com/liuxd6825/cdptab/api"
	"github.com/liuxd6825/cdptab/common"
	"github.com/liuxd6825/cdptab/log"
)

// Option customizes the backend New builds.
type Option func(*settings)

type settings struct {
	client *http.Client
	fs     afero.Fs
}

// WithHTTPClient sets the client used for HTTP endpoints: the debugging
// endpoint of the cdp backend and the extension proxy.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) {
		s.client = client
	}
}

// WithFs sets the filesystem screenshots are written to.
func WithFs(fs afero.Fs) Option {
	return func(s *settings) {
		s.fs = fs
	}
}

// Backends lists the names New accepts.
func Backends() []string {
	return []string{common.BackendCDP, common.BackendPlaywright, common.BackendExtension}
}

// New returns the backend named by opts.Backend. It is not started.
func New(opts *common.BrowserOptions, logger *log.Logger, options ...Option) (api.Browser, error) {
	s := settings{client: http.DefaultClient, fs: afero.NewOsFs()}
	for _, o := range options {
		o(&s)
	}
	if logger == nil {
		logger = log.NewNullLogger()
	}

	switch opts.Backend {
	case common.BackendCDP:
		return NewCDP(opts, logger, s.client, s.fs), nil
	case common.BackendPlaywright:
		return NewPlaywright(opts, logger, s.fs), nil
	case common.BackendExtension:
		return NewExtension(opts.ExtensionURL, s.client, logger), nil
	}
	return nil, fmt.Errorf("unknown browser backend %q", opts.Backend)
}
