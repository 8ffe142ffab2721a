package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/liuxd6825/cdptab/api"
	"github.com/liuxd6825/cdptab/common"
	"github.com/liuxd6825/cdptab/log"
)

var _ api.Browser = &Extension{}

// Extension forwards actions to a browser extension that exposes a local
// HTTP API: every action is a JSON POST to {endpoint}/{action}.
type Extension struct {
	endpoint string
	client   *http.Client
	logger   *log.Logger

	mu      sync.Mutex
	started bool
}

// NewExtension returns an unstarted extension backend for endpoint.
func NewExtension(endpoint string, client *http.Client, logger *log.Logger) *Extension {
	if endpoint == "" {
		endpoint = common.DefaultExtensionURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Extension{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
		logger:   logger,
	}
}

// Start marks the backend usable. The extension needs no handshake.
func (b *Extension) Start(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = true
	b.logger.Debugf("Extension:Start", "endpoint:%s", b.endpoint)
	return nil
}

// Stop drops idle connections to the extension.
func (b *Extension) Stop(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		b.client.CloseIdleConnections()
		b.started = false
	}
	return nil
}

// Navigate asks the extension to load url.
func (b *Extension) Navigate(ctx context.Context, url string) error {
	_, err := b.post(ctx, "navigate", map[string]any{"url": url})
	return err
}

// Click asks the extension to click the first element matching selector.
func (b *Extension) Click(ctx context.Context, selector string) error {
	_, err := b.post(ctx, "click", map[string]any{"selector": selector})
	return err
}

// Evaluate asks the extension to run script. The value is read from the
// "result" key of the reply, or is the whole reply when that key is absent.
func (b *Extension) Evaluate(ctx context.Context, script string, args ...any) (any, error) {
	if args == nil {
		args = []any{}
	}
	body, err := b.post(ctx, "evaluate", map[string]any{"script": script, "args": args})
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("evaluate: invalid JSON reply from the extension")
	}
	reply := gjson.ParseBytes(body)
	if r := reply.Get("result"); reply.IsObject() && r.Exists() {
		return r.Value(), nil
	}
	return reply.Value(), nil
}

func (b *Extension) post(ctx context.Context, action string, payload any) ([]byte, error) {
	b.mu.Lock()
	started := b.started
	b.mu.Unlock()
	if !started {
		return nil, fmt.Errorf("%w: extension backend is not started", common.ErrNotConnected)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encoding request: %w", action, err)
	}
	url := b.endpoint + "/" + action
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	b.logger.Debugf("Extension:post", "-> %s %s", url, data)
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrConnectionFailed, action, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: reading reply: %w", action, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &common.CommandError{
			Method:  action,
			Code:    int64(resp.StatusCode),
			Message: strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}
