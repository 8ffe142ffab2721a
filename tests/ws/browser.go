package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
	"github.com/mccutchen/go-httpbin/httpbin"
	uuid "github.com/nu7hatch/gouuid"
)

// PNG is a 1x1 transparent PNG returned for every screenshot.
var PNG = []byte{ //nolint:gochecknoglobals
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

// DefaultContent is the document the fake serves for page content requests.
const DefaultContent = `<html><head><title>fake</title></head><body><h1 id="title">Hello</h1><p class="msg">from the fake browser</p></body></html>`

// Tab is a tab listed by the fake browser.
type Tab struct {
	ID    string
	Type  string
	Title string
	URL   string
}

// EvalResult is what an Evaluator produces for an expression.
// A non-empty Throw makes the evaluation fail with that error message.
type EvalResult struct {
	Value any
	Throw string
	Delay time.Duration
}

// Evaluator computes the result of Runtime.evaluate.
type Evaluator func(expression string) EvalResult

// CDPHandler answers a single command. Returning ok=false falls back to the
// default handling.
type CDPHandler func(msg *cdproto.Message) (result easyjson.RawMessage, cerr *cdproto.Error, ok bool)

// BrowserOption configures a Browser.
type BrowserOption func(*Browser)

// WithTabs sets the tabs listed before any is created.
func WithTabs(tabs ...Tab) BrowserOption {
	return func(b *Browser) {
		b.tabs = append(b.tabs[:0], tabs...)
	}
}

// WithEvaluator replaces the default Runtime.evaluate behavior.
func WithEvaluator(fn Evaluator) BrowserOption {
	return func(b *Browser) {
		b.evaluate = fn
	}
}

// WithElements sets the selectors the default evaluator treats as present.
func WithElements(selectors ...string) BrowserOption {
	return func(b *Browser) {
		for _, s := range selectors {
			b.elements[s] = true
		}
	}
}

// WithCDPHandler installs fn in front of the default command handling.
func WithCDPHandler(fn CDPHandler) BrowserOption {
	return func(b *Browser) {
		b.handler = fn
	}
}

// WithEventNoise makes the fake send n unsolicited events and a reply with
// an unknown id before every response.
func WithEventNoise(n int) BrowserOption {
	return func(b *Browser) {
		b.noise = n
	}
}

// WithNewTabMethods restricts the HTTP methods accepted by /json/new.
func WithNewTabMethods(methods ...string) BrowserOption {
	return func(b *Browser) {
		b.newTabMethods = methods
	}
}

// WithDropOn makes the fake close the WebSocket abnormally when it receives
// the given method.
func WithDropOn(method string) BrowserOption {
	return func(b *Browser) {
		b.dropOn = method
	}
}

// Browser fakes the remote debugging endpoint of a Chromium browser: the
// /json HTTP API and a CDP WebSocket per tab.
type Browser struct {
	mu            sync.Mutex
	tabs          []Tab
	closed        []string
	created       int
	commands      []string
	elements      map[string]bool
	evaluate      Evaluator
	handler       CDPHandler
	noise         int
	newTabMethods []string
	dropOn        string

	upgrader websocket.Upgrader
}

// NewBrowser returns a fake browser with a single about:blank tab.
func NewBrowser(opts ...BrowserOption) *Browser {
	b := &Browser{
		tabs:          []Tab{{ID: newID(), Type: "page", URL: "about:blank"}},
		elements:      map[string]bool{"body": true},
		newTabMethods: []string{http.MethodPut, http.MethodGet},
	}
	b.evaluate = b.defaultEvaluator
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Tabs returns the tabs currently listed.
func (b *Browser) Tabs() []Tab {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Tab(nil), b.tabs...)
}

// CreatedTabs returns how many tabs were created through /json/new.
func (b *Browser) CreatedTabs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.created
}

// ClosedTabs returns the ids passed to /json/close.
func (b *Browser) ClosedTabs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.closed...)
}

// Commands returns the CDP methods received so far, in order.
func (b *Browser) Commands() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.commands...)
}

// Handler returns the HTTP handler serving the fake. Paths it does not know
// fall through to httpbin.
func (b *Browser) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/json/version", b.handleVersion)
	r.Get("/json/list", b.handleList)
	r.Get("/json", b.handleList)
	r.HandleFunc("/json/new", b.handleNew)
	r.Get("/json/close/{id}", b.handleClose)
	r.Get("/devtools/page/{id}", b.handleCDP)
	r.NotFound(httpbin.New().Handler().ServeHTTP)
	return r
}

// Serve serves the fake on addr until ctx is done.
func (b *Browser) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: b.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (b *Browser) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"Browser":              "HeadlessChrome/120.0.0.0",
		"Protocol-Version":     "1.3",
		"User-Agent":           "Mozilla/5.0 HeadlessChrome/120.0.0.0",
		"V8-Version":           "12.0.267.8",
		"WebKit-Version":       "537.36",
		"webSocketDebuggerUrl": "ws://" + r.Host + "/devtools/browser/" + newID(),
	})
}

func (b *Browser) handleList(w http.ResponseWriter, r *http.Request) {
	tabs := b.Tabs()
	out := make([]map[string]string, 0, len(tabs))
	for _, t := range tabs {
		out = append(out, tabJSON(r.Host, t))
	}
	writeJSON(w, out)
}

func (b *Browser) handleNew(w http.ResponseWriter, r *http.Request) {
	allowed := false
	for _, m := range b.newTabMethods {
		if m == r.Method {
			allowed = true
		}
	}
	if !allowed {
		http.Error(w, "Using unsafe HTTP verb "+r.Method+" to invoke /json/new.", http.StatusMethodNotAllowed)
		return
	}

	url := r.URL.RawQuery
	if url == "" {
		url = "about:blank"
	}
	t := Tab{ID: newID(), Type: "page", URL: url}

	b.mu.Lock()
	b.tabs = append(b.tabs, t)
	b.created++
	b.mu.Unlock()

	writeJSON(w, tabJSON(r.Host, t))
}

func (b *Browser) handleClose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, id)
	for i, t := range b.tabs {
		if t.ID == id {
			b.tabs = append(b.tabs[:i], b.tabs[i+1:]...)
			_, _ = w.Write([]byte("Target is closing"))
			return
		}
	}
	http.Error(w, "No such target id: "+id, http.StatusNotFound)
}

func (b *Browser) handleCDP(w http.ResponseWriter, r *http.Request) {
	tabID := chi.URLParam(r, "id")
	conn, err := b.upgrader.Upgrade(w, r, w.Header())
	if err != nil {
		return
	}
	defer conn.Close() //nolint:errcheck

	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	write := func(msg *cdproto.Message) {
		encoder := jwriter.Writer{}
		msg.MarshalEasyJSON(&encoder)
		if encoder.Error != nil {
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		writer, err := conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		if _, err := encoder.DumpTo(writer); err != nil {
			return
		}
		_ = writer.Close()
	}

	defer wg.Wait()
	for {
		_, buf, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg cdproto.Message
		decoder := jlexer.Lexer{Data: buf}
		msg.UnmarshalEasyJSON(&decoder)
		if decoder.Error() != nil {
			return
		}

		b.mu.Lock()
		b.commands = append(b.commands, string(msg.Method))
		drop := b.dropOn != "" && string(msg.Method) == b.dropOn
		b.mu.Unlock()
		if drop {
			// Skip the close handshake so the client sees an abnormal closure.
			_ = conn.UnderlyingConn().Close()
			return
		}

		wg.Add(1)
		go func(msg cdproto.Message) {
			defer wg.Done()
			for i := 0; i < b.noise; i++ {
				write(noiseEvent(i))
			}
			if b.noise > 0 {
				write(&cdproto.Message{ID: msg.ID + 1_000_000, Result: easyjson.RawMessage(`{}`)})
			}
			res, cerr := b.dispatch(tabID, &msg)
			write(&cdproto.Message{ID: msg.ID, Result: res, Error: cerr})
		}(msg)
	}
}

func (b *Browser) dispatch(tabID string, msg *cdproto.Message) (easyjson.RawMessage, *cdproto.Error) {
	if b.handler != nil {
		if res, cerr, ok := b.handler(msg); ok {
			return res, cerr
		}
	}

	switch msg.Method {
	case "Runtime.enable", "Page.enable", "Network.enable":
		return easyjson.RawMessage(`{}`), nil
	case "Page.navigate":
		var params struct {
			URL string `json:"url"`
		}
		_ = json.Unmarshal(msg.Params, &params)
		res := map[string]string{"frameId": tabID, "loaderId": newID()}
		if strings.Contains(params.URL, ".invalid") {
			res["errorText"] = "net::ERR_NAME_NOT_RESOLVED"
		} else {
			b.setTabURL(tabID, params.URL)
		}
		return marshal(res), nil
	case "Page.captureScreenshot":
		return marshal(map[string]string{"data": base64.StdEncoding.EncodeToString(PNG)}), nil
	case "Runtime.evaluate":
		var params struct {
			Expression string `json:"expression"`
		}
		_ = json.Unmarshal(msg.Params, &params)
		res := b.evaluate(params.Expression)
		if res.Delay > 0 {
			time.Sleep(res.Delay)
		}
		return evaluateResult(res), nil
	default:
		return nil, &cdproto.Error{
			Code:    -32601,
			Message: fmt.Sprintf("'%s' wasn't found", msg.Method),
		}
	}
}

func (b *Browser) setTabURL(id, url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.tabs {
		if b.tabs[i].ID == id {
			b.tabs[i].URL = url
		}
	}
}

var (
	sumRe     = regexp.MustCompile(`^\s*(\d+)\s*\+\s*(\d+)\s*$`)
	throwRe   = regexp.MustCompile(`throw new Error\((["'])(.*?)["']\)`)
	selRe     = regexp.MustCompile(`const sel = ("(?:[^"\\]|\\.)*");`)
	markerRe  = regexp.MustCompile(`new Error\(("(?:[^"\\]|\\.)*") \+ sel\)`)
	timeoutRe = regexp.MustCompile(`\}, (\d+)\);\s*\}\)$`)
)

// defaultEvaluator understands integer sums, thrown errors and the page
// helper scripts. Anything else evaluates to undefined.
func (b *Browser) defaultEvaluator(expr string) EvalResult {
	if m := sumRe.FindStringSubmatch(expr); m != nil {
		x, _ := strconv.Atoi(m[1])
		y, _ := strconv.Atoi(m[2])
		return EvalResult{Value: x + y}
	}
	if m := throwRe.FindStringSubmatch(expr); m != nil {
		return EvalResult{Throw: m[2]}
	}
	if strings.Contains(expr, "outerHTML") {
		return EvalResult{Value: DefaultContent}
	}

	m := selRe.FindStringSubmatch(expr)
	if m == nil {
		return EvalResult{}
	}
	var sel string
	_ = json.Unmarshal([]byte(m[1]), &sel)

	b.mu.Lock()
	present := b.elements[sel]
	b.mu.Unlock()
	if present {
		return EvalResult{Value: true}
	}

	if mm := markerRe.FindStringSubmatch(expr); mm != nil {
		var marker string
		_ = json.Unmarshal([]byte(mm[1]), &marker)
		var delay time.Duration
		if tm := timeoutRe.FindStringSubmatch(expr); tm != nil {
			ms, _ := strconv.Atoi(tm[1])
			delay = time.Duration(ms) * time.Millisecond
		}
		return EvalResult{Throw: marker + sel, Delay: delay}
	}
	return EvalResult{Throw: "element not found: " + sel}
}

func evaluateResult(res EvalResult) easyjson.RawMessage {
	if res.Throw != "" {
		desc := "Error: " + res.Throw + "\n    at <anonymous>:1:7"
		errObj := map[string]any{
			"type":        "object",
			"subtype":     "error",
			"className":   "Error",
			"description": desc,
		}
		return marshal(map[string]any{
			"result": errObj,
			"exceptionDetails": map[string]any{
				"exceptionId":  1,
				"text":         "Uncaught",
				"lineNumber":   0,
				"columnNumber": 6,
				"exception":    errObj,
			},
		})
	}
	return marshal(map[string]any{"result": remoteObject(res.Value)})
}

func remoteObject(v any) map[string]any {
	switch v := v.(type) {
	case nil:
		return map[string]any{"type": "undefined"}
	case bool:
		return map[string]any{"type": "boolean", "value": v}
	case string:
		return map[string]any{"type": "string", "value": v}
	case int, int64, float64:
		return map[string]any{"type": "number", "value": v, "description": fmt.Sprint(v)}
	default:
		return map[string]any{"type": "object", "value": v}
	}
}

func noiseEvent(i int) *cdproto.Message {
	methods := []string{"Network.requestWillBeSent", "Page.frameNavigated", "Runtime.consoleAPICalled"}
	return &cdproto.Message{
		Method: cdproto.MethodType(methods[i%len(methods)]),
		Params: easyjson.RawMessage(fmt.Sprintf(`{"seq":%d}`, i)),
	}
}

func tabJSON(host string, t Tab) map[string]string {
	return map[string]string{
		"id":                   t.ID,
		"type":                 t.Type,
		"title":                t.Title,
		"url":                  t.URL,
		"description":          "",
		"devtoolsFrontendUrl":  "/devtools/inspector.html?ws=" + host + "/devtools/page/" + t.ID,
		"webSocketDebuggerUrl": "ws://" + host + "/devtools/page/" + t.ID,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	_ = json.NewEncoder(w).Encode(v)
}

func marshal(v any) easyjson.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func newID() string {
	id, err := uuid.NewV4()
	if err != nil {
		panic(err)
	}
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
}
