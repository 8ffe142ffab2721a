package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdppage "github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"

	"github.com/liuxd6825/cdptab/log"
	"github.com/liuxd6825/cdptab/storage"
)

// Page runs actions against the tab a Connection is attached to.
type Page struct {
	conn      *Connection
	tab       TabInfo
	persister *storage.FilePersister
	logger    *log.Logger
}

// NewPage returns a Page for tab over conn. Screenshots are written with
// persister.
func NewPage(conn *Connection, tab TabInfo, persister *storage.FilePersister, logger *log.Logger) *Page {
	if persister == nil {
		persister = storage.NewFilePersister(nil)
	}
	return &Page{
		conn:      conn,
		tab:       tab,
		persister: persister,
		logger:    logger,
	}
}

// Tab returns the tab the page drives.
func (p *Page) Tab() TabInfo {
	return p.tab
}

func (p *Page) executor(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, p.conn)
}

// Navigate starts loading url. It does not wait for the load to finish.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debugf("Page:Navigate", "tid:%s url:%q", p.tab.ID, url)

	_, _, errText, err := cdppage.Navigate(url).Do(p.executor(ctx))
	if err != nil {
		return fmt.Errorf("navigating to %q: %w", url, err)
	}
	if errText != "" {
		return &CommandError{Method: "Page.navigate", Message: errText}
	}
	return nil
}

// Evaluate runs expression in the page, awaiting a returned promise, and
// returns the result by value.
func (p *Page) Evaluate(ctx context.Context, expression string) (any, error) {
	p.logger.Debugf("Page:Evaluate", "tid:%s", p.tab.ID)

	action := cdpruntime.Evaluate(expression).
		WithReturnByValue(true).
		WithAwaitPromise(true)
	res, exc, err := action.Do(p.executor(ctx))
	if err != nil {
		return nil, fmt.Errorf("evaluating script: %w", err)
	}
	if se := parseExceptionDetails(exc); se != nil {
		return nil, se
	}
	return valueFromRemoteObject(res)
}

// EvaluateWithArgs calls the function expression fn with args. Without
// args it is the same as Evaluate.
func (p *Page) EvaluateWithArgs(ctx context.Context, fn string, args ...any) (any, error) {
	if len(args) == 0 {
		return p.Evaluate(ctx, fn)
	}
	expr, err := applyExpression(fn, args)
	if err != nil {
		return nil, err
	}
	return p.Evaluate(ctx, expr)
}

// Click clicks the first element matching selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	p.logger.Debugf("Page:Click", "tid:%s selector:%q", p.tab.ID, selector)

	if _, err := p.Evaluate(ctx, clickExpression(selector)); err != nil {
		return fmt.Errorf("clicking %q: %w", selector, err)
	}
	return nil
}

// Type sets the value of the first element matching selector to text and
// fires input and change events.
func (p *Page) Type(ctx context.Context, selector, text string) error {
	p.logger.Debugf("Page:Type", "tid:%s selector:%q len:%d", p.tab.ID, selector, len(text))

	if _, err := p.Evaluate(ctx, typeExpression(selector, text)); err != nil {
		return fmt.Errorf("typing into %q: %w", selector, err)
	}
	return nil
}

// WaitForSelector waits until selector matches an element. The timeout is
// enforced by the page itself and reported as *WaitTimeoutError.
func (p *Page) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	p.logger.Debugf("Page:WaitForSelector", "tid:%s selector:%q timeout:%s", p.tab.ID, selector, timeout)

	_, err := p.Evaluate(ctx, waitForSelectorExpression(selector, timeout))
	if err == nil {
		return nil
	}
	var se *ScriptError
	if errors.As(err, &se) && strings.Contains(se.Message(), waitTimeoutMarker) {
		return &WaitTimeoutError{Selector: selector, Timeout: timeout, Script: se}
	}
	return fmt.Errorf("waiting for %q: %w", selector, err)
}

// CaptureScreenshot returns a PNG of the visible viewport.
func (p *Page) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	buf, err := cdppage.CaptureScreenshot().
		WithFormat(cdppage.CaptureScreenshotFormatPng).
		Do(p.executor(ctx))
	if err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	return buf, nil
}

// Screenshot captures a PNG and writes it to path.
func (p *Page) Screenshot(ctx context.Context, path string) error {
	p.logger.Debugf("Page:Screenshot", "tid:%s path:%q", p.tab.ID, path)

	buf, err := p.CaptureScreenshot(ctx)
	if err != nil {
		return err
	}
	if err := p.persister.Persist(ctx, path, bytes.NewReader(buf)); err != nil {
		return &FileWriteError{Path: path, Err: err}
	}
	return nil
}

// Content returns the outer HTML of the document.
func (p *Page) Content(ctx context.Context) (string, error) {
	v, err := p.Evaluate(ctx, contentScript)
	if err != nil {
		return "", fmt.Errorf("reading document content: %w", err)
	}
	s, _ := v.(string)
	return s, nil
}
