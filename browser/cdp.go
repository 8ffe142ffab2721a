package browser

import (
	"context"
	"net/http"

	"github.com/spf13/afero"

	"github.com/liuxd6825/cdptab/api"
	"github.com/liuxd6825/cdptab/chromium"
	"github.com/liuxd6825/cdptab/common"
	"github.com/liuxd6825/cdptab/log"
)

var _ api.Tab = &CDP{}

// CDP drives a tab over the DevTools protocol, adopting or launching a
// Chromium browser.
type CDP struct {
	*chromium.TabController
}

// NewCDP returns an unstarted CDP backend.
func NewCDP(opts *common.BrowserOptions, logger *log.Logger, client *http.Client, fs afero.Fs) *CDP {
	return &CDP{
		TabController: chromium.NewTabController(opts, logger,
			chromium.WithHTTPClient(client),
			chromium.WithFs(fs),
		),
	}
}

// Start connects to the tab.
func (b *CDP) Start(ctx context.Context) error {
	return b.Connect(ctx)
}

// Stop closes the tab session. Teardown failures are only logged.
func (b *CDP) Stop(ctx context.Context) error {
	b.Close(ctx)
	return nil
}
