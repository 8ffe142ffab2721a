package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/spf13/afero"

	"github.com/liuxd6825/cdptab/api"
	"github.com/liuxd6825/cdptab/common"
	"github.com/liuxd6825/cdptab/log"
	"github.com/liuxd6825/cdptab/storage"
)

var _ api.Tab = &Playwright{}

// Playwright drives a page of a Chromium browser launched by the
// playwright driver.
type Playwright struct {
	opts      *common.BrowserOptions
	logger    *log.Logger
	persister *storage.FilePersister

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
}

// NewPlaywright returns an unstarted playwright backend.
func NewPlaywright(opts *common.BrowserOptions, logger *log.Logger, fs afero.Fs) *Playwright {
	return &Playwright{
		opts:      opts.Clone(),
		logger:    logger,
		persister: storage.NewFilePersister(fs),
	}
}

// launchOptions maps the browser options playwright understands.
func launchOptions(opts *common.BrowserOptions) playwright.BrowserTypeLaunchOptions {
	lo := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Timeout:  playwright.Float(float64(opts.StartupTimeout.Milliseconds())),
	}
	if opts.BinaryPath != "" {
		lo.ExecutablePath = playwright.String(opts.BinaryPath)
	}
	if len(opts.ExtraArgs) > 0 {
		lo.Args = append([]string(nil), opts.ExtraArgs...)
	}
	return lo
}

// Start runs the driver, launches Chromium and opens a page.
func (b *Playwright) Start(_ context.Context) (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pw != nil {
		return fmt.Errorf("%w: playwright backend already started", common.ErrInvalidState)
	}

	pw, err := playwright.Run(&playwright.RunOptions{Stdout: io.Discard, Stderr: io.Discard})
	if err != nil {
		return fmt.Errorf("%w: starting the playwright driver: %w", common.ErrProcessStartupFailed, err)
	}
	b.pw = pw
	defer func() {
		if err != nil {
			b.stop()
		}
	}()

	if b.browser, err = pw.Chromium.Launch(launchOptions(b.opts)); err != nil {
		return fmt.Errorf("%w: launching chromium: %w", common.ErrProcessStartupFailed, err)
	}
	if b.page, err = b.browser.NewPage(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrTabCreationFailed, err)
	}
	b.logger.Infof("Playwright:Start", "chromium %s ready", b.browser.Version())

	return nil
}

// Stop closes the page and the browser and stops the driver. Failures are
// only logged.
func (b *Playwright) Stop(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stop()
	return nil
}

func (b *Playwright) stop() {
	if b.page != nil {
		if err := b.page.Close(); err != nil {
			b.logger.Warnf("Playwright:Stop", "closing page: %v", err)
		}
		b.page = nil
	}
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			b.logger.Warnf("Playwright:Stop", "closing browser: %v", err)
		}
		b.browser = nil
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			b.logger.Warnf("Playwright:Stop", "stopping driver: %v", err)
		}
		b.pw = nil
	}
}

func (b *Playwright) withPage(fn func(playwright.Page) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page == nil {
		return fmt.Errorf("%w: playwright backend is not started", common.ErrNotConnected)
	}
	return fn(b.page)
}

// Navigate loads url and waits for the load event.
func (b *Playwright) Navigate(_ context.Context, url string) error {
	return b.withPage(func(p playwright.Page) error {
		if _, err := p.Goto(url); err != nil {
			return fmt.Errorf("navigating to %q: %w", url, err)
		}
		return nil
	})
}

// Click clicks the first element matching selector.
func (b *Playwright) Click(_ context.Context, selector string) error {
	return b.withPage(func(p playwright.Page) error {
		if err := p.Click(selector); err != nil {
			return fmt.Errorf("clicking %q: %w", selector, err)
		}
		return nil
	})
}

// evaluateCall adapts a script and its arguments to playwright's single
// argument evaluate.
func evaluateCall(script string, args []any) (string, []any) {
	switch len(args) {
	case 0:
		return script, nil
	case 1:
		return script, args
	}
	return fmt.Sprintf("(args) => (%s)(...args)", script), []any{args}
}

// Evaluate runs script in the page. With arguments, script must be a
// function expression.
func (b *Playwright) Evaluate(_ context.Context, script string, args ...any) (any, error) {
	var v any
	err := b.withPage(func(p playwright.Page) error {
		expr, arg := evaluateCall(script, args)
		var err error
		if v, err = p.Evaluate(expr, arg...); err != nil {
			return fmt.Errorf("%w: %w", common.ErrScript, err)
		}
		return nil
	})
	return v, err
}

// Type fills the first element matching selector with text.
func (b *Playwright) Type(_ context.Context, selector, text string) error {
	return b.withPage(func(p playwright.Page) error {
		if err := p.Fill(selector, text); err != nil {
			return fmt.Errorf("typing into %q: %w", selector, err)
		}
		return nil
	})
}

// WaitForSelector waits up to timeout for selector to match.
func (b *Playwright) WaitForSelector(_ context.Context, selector string, timeout time.Duration) error {
	return b.withPage(func(p playwright.Page) error {
		_, err := p.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
			State:   playwright.WaitForSelectorStateAttached,
			Timeout: playwright.Float(float64(timeout.Milliseconds())),
		})
		switch {
		case errors.Is(err, playwright.ErrTimeout):
			return &common.WaitTimeoutError{Selector: selector, Timeout: timeout}
		case err != nil:
			return fmt.Errorf("waiting for %q: %w", selector, err)
		}
		return nil
	})
}

// Screenshot writes a PNG of the viewport to path.
func (b *Playwright) Screenshot(ctx context.Context, path string) error {
	return b.withPage(func(p playwright.Page) error {
		buf, err := p.Screenshot(playwright.PageScreenshotOptions{Type: playwright.ScreenshotTypePng})
		if err != nil {
			return fmt.Errorf("capturing screenshot: %w", err)
		}
		if err := b.persister.Persist(ctx, path, bytes.NewReader(buf)); err != nil {
			return &common.FileWriteError{Path: path, Err: err}
		}
		return nil
	})
}

// Content returns the HTML of the page.
func (b *Playwright) Content(_ context.Context) (string, error) {
	var s string
	err := b.withPage(func(p playwright.Page) error {
		var err error
		s, err = p.Content()
		return err
	})
	return s, err
}
