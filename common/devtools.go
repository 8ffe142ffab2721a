package common

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/liuxd6825/cdptab/log"
)

const (
	// VersionProbeTimeout bounds the /json/version liveness probe.
	VersionProbeTimeout = 2 * time.Second
	// TabRequestTimeout bounds the tab list, create and close requests.
	TabRequestTimeout = 5 * time.Second

	pageTargetType = "page"
)

const loopbackHost = "127.0.0.1"

// BaseURL returns the debugging endpoint of a browser listening on port
// on the loopback interface.
func BaseURL(port int) string {
	return "http://" + net.JoinHostPort(loopbackHost, strconv.Itoa(port))
}

// TabInfo is one entry of the /json/list endpoint.
type TabInfo struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	Description          string `json:"description,omitempty"`
	DevtoolsFrontendURL  string `json:"devtoolsFrontendUrl,omitempty"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// VersionInfo is the payload of the /json/version endpoint.
type VersionInfo struct {
	Browser              string `json:"browser" yaml:"browser"`
	ProtocolVersion      string `json:"protocolVersion" yaml:"protocolVersion"`
	UserAgent            string `json:"userAgent" yaml:"userAgent"`
	V8Version            string `json:"v8Version" yaml:"v8Version"`
	WebKitVersion        string `json:"webKitVersion" yaml:"webKitVersion"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl" yaml:"webSocketDebuggerUrl"`
}

// DevTools talks to the HTTP side of a browser's debugging endpoint.
type DevTools struct {
	baseURL string
	client  *http.Client
	logger  *log.Logger
}

// NewDevTools returns a client for the endpoint at baseURL, e.g.
// http://127.0.0.1:9222. A nil client uses http.DefaultClient.
func NewDevTools(baseURL string, client *http.Client, logger *log.Logger) *DevTools {
	if client == nil {
		client = http.DefaultClient
	}
	return &DevTools{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// BaseURL returns the endpoint the client talks to.
func (d *DevTools) BaseURL() string {
	return d.baseURL
}

// Version fetches /json/version. It fails unless the endpoint answers 200
// with a browser WebSocket URL.
func (d *DevTools) Version(ctx context.Context) (*VersionInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, VersionProbeTimeout)
	defer cancel()

	body, status, err := d.do(ctx, http.MethodGet, "/json/version")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("GET /json/version: unexpected status %d", status)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("GET /json/version: invalid JSON body")
	}
	r := gjson.ParseBytes(body)
	v := &VersionInfo{
		Browser:              r.Get("Browser").String(),
		ProtocolVersion:      r.Get("Protocol-Version").String(),
		UserAgent:            r.Get("User-Agent").String(),
		V8Version:            r.Get("V8-Version").String(),
		WebKitVersion:        r.Get("WebKit-Version").String(),
		WebSocketDebuggerURL: r.Get("webSocketDebuggerUrl").String(),
	}
	if v.WebSocketDebuggerURL == "" {
		return nil, fmt.Errorf("GET /json/version: missing webSocketDebuggerUrl")
	}
	return v, nil
}

// IsAlive reports whether a debugging endpoint answers at the base URL.
func (d *DevTools) IsAlive(ctx context.Context) bool {
	v, err := d.Version(ctx)
	if err != nil {
		d.logger.Tracef("DevTools:IsAlive", "url:%s err:%v", d.baseURL, err)
		return false
	}
	d.logger.Debugf("DevTools:IsAlive", "url:%s browser:%q", d.baseURL, v.Browser)
	return true
}

// ListTabs returns the targets of the browser. Any failure is logged and
// yields an empty list: no tabs yet is a normal state.
func (d *DevTools) ListTabs(ctx context.Context) []TabInfo {
	tabs, err := d.listTabs(ctx)
	if err != nil {
		d.logger.Debugf("DevTools:ListTabs", "url:%s err:%v", d.baseURL, err)
		return []TabInfo{}
	}
	return tabs
}

func (d *DevTools) listTabs(ctx context.Context) ([]TabInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, TabRequestTimeout)
	defer cancel()

	body, status, err := d.do(ctx, http.MethodGet, "/json/list")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("GET /json/list: unexpected status %d", status)
	}
	var tabs []TabInfo
	if err := json.Unmarshal(body, &tabs); err != nil {
		return nil, fmt.Errorf("GET /json/list: decoding: %w", err)
	}
	if tabs == nil {
		tabs = []TabInfo{}
	}
	return tabs, nil
}

// FindTargetTab returns the first page target whose URL contains
// urlFilter. An empty filter matches any page.
func (d *DevTools) FindTargetTab(ctx context.Context, urlFilter string) (TabInfo, bool) {
	return SelectTab(d.ListTabs(ctx), urlFilter)
}

// SelectTab picks the first page target whose URL contains urlFilter.
func SelectTab(tabs []TabInfo, urlFilter string) (TabInfo, bool) {
	for _, t := range tabs {
		if t.Type != pageTargetType {
			continue
		}
		if urlFilter == "" || strings.Contains(t.URL, urlFilter) {
			return t, true
		}
	}
	return TabInfo{}, false
}

// NewTab opens a blank tab. Current browsers only accept PUT on /json/new;
// older ones only GET, so a 405 is retried with GET.
func (d *DevTools) NewTab(ctx context.Context) (TabInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, TabRequestTimeout)
	defer cancel()

	body, status, err := d.do(ctx, http.MethodPut, "/json/new")
	if err == nil && status == http.StatusMethodNotAllowed {
		body, status, err = d.do(ctx, http.MethodGet, "/json/new")
	}
	if err != nil {
		return TabInfo{}, fmt.Errorf("%w: %w", ErrTabCreationFailed, err)
	}
	if status != http.StatusOK {
		return TabInfo{}, fmt.Errorf("%w: /json/new returned status %d: %s",
			ErrTabCreationFailed, status, strings.TrimSpace(string(body)))
	}
	var tab TabInfo
	if err := json.Unmarshal(body, &tab); err != nil {
		return TabInfo{}, fmt.Errorf("%w: decoding /json/new: %w", ErrTabCreationFailed, err)
	}
	if tab.WebSocketDebuggerURL == "" {
		return TabInfo{}, fmt.Errorf("%w: tab %q has no webSocketDebuggerUrl", ErrTabCreationFailed, tab.ID)
	}
	d.logger.Debugf("DevTools:NewTab", "tid:%s url:%q", tab.ID, tab.URL)

	return tab, nil
}

// CloseTab asks the browser to close the tab. Failures are logged only.
func (d *DevTools) CloseTab(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(ctx, TabRequestTimeout)
	defer cancel()

	body, status, err := d.do(ctx, http.MethodGet, "/json/close/"+url.PathEscape(id))
	switch {
	case err != nil:
		d.logger.Warnf("DevTools:CloseTab", "tid:%s err:%v", id, err)
	case status != http.StatusOK:
		d.logger.Warnf("DevTools:CloseTab", "tid:%s status:%d body:%q", id, status, strings.TrimSpace(string(body)))
	default:
		d.logger.Debugf("DevTools:CloseTab", "tid:%s closed", id)
	}
}

func (d *DevTools) do(ctx context.Context, method, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%s %s: reading body: %w", method, path, err)
	}
	return body, resp.StatusCode, nil
}
