package chromium

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/liuxd6825/cdptab/common"
	"github.com/liuxd6825/cdptab/log"
	"github.com/liuxd6825/cdptab/storage"
)

// State is the lifecycle state of a TabController.
type State int

// Controller states, in lifecycle order.
const (
	StateUnconnected State = iota
	StateProcessStarting
	StateTabSelecting
	StateTransportOpen
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateProcessStarting:
		return "process-starting"
	case StateTabSelecting:
		return "tab-selecting"
	case StateTransportOpen:
		return "transport-open"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ControllerOption customizes a TabController.
type ControllerOption func(*TabController)

// WithHTTPClient sets the client used for the debugging endpoint.
func WithHTTPClient(client *http.Client) ControllerOption {
	return func(c *TabController) {
		c.client = client
	}
}

// WithFs sets the filesystem screenshots and the user data dir go to.
func WithFs(fs afero.Fs) ControllerOption {
	return func(c *TabController) {
		c.fs = fs
	}
}

// TabController owns one browser tab: the process it may have launched,
// the tab and the CDP connection to it.
type TabController struct {
	opts      *common.BrowserOptions
	logger    *log.Logger
	client    *http.Client
	fs        afero.Fs
	allocator *Allocator

	mu         sync.Mutex
	state      State
	inst       *Instance
	devtools   *common.DevTools
	tab        common.TabInfo
	createdTab bool
	conn       *common.Connection
	page       *common.Page
}

// NewTabController returns an unconnected controller. opts is copied.
func NewTabController(opts *common.BrowserOptions, logger *log.Logger, options ...ControllerOption) *TabController {
	if logger == nil {
		logger = log.NewNullLogger()
	}
	c := &TabController{
		opts:   opts.Clone(),
		logger: logger,
		client: http.DefaultClient,
		fs:     afero.NewOsFs(),
	}
	for _, o := range options {
		o(c)
	}
	c.allocator = NewAllocator(c.opts, c.client, logger)
	c.allocator.fs = c.fs

	// Last resort only: the owner is expected to call Close.
	runtime.SetFinalizer(c, func(c *TabController) {
		if s := c.State(); s != StateUnconnected && s != StateClosed {
			c.logger.Warnf("TabController:finalizer", "controller in state %s was never closed, closing it", s)
			c.Close(context.Background())
		}
	})

	return c
}

// State returns the current lifecycle state.
func (c *TabController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect brings the controller to the ready state: it adopts or launches
// a browser, picks or creates a tab and opens the CDP connection. On
// failure everything acquired so far is released and the controller stays
// unconnected.
func (c *TabController) Connect(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateUnconnected {
		return fmt.Errorf("%w: connect in state %s", common.ErrInvalidState, c.state)
	}
	defer func() {
		if err != nil {
			c.release(ctx)
			c.state = StateUnconnected
		}
	}()

	c.state = StateProcessStarting
	inst, err := c.allocator.Setup(ctx)
	if err != nil {
		return err
	}
	c.inst = inst
	c.devtools = common.NewDevTools(inst.BaseURL, c.client, c.logger)

	c.state = StateTabSelecting
	tab, ok := c.devtools.FindTargetTab(ctx, c.opts.TargetTabURL)
	if ok {
		c.logger.Debugf("TabController:Connect", "tid:%s url:%q selected", tab.ID, tab.URL)
	} else {
		if tab, err = c.devtools.NewTab(ctx); err != nil {
			return err
		}
		c.createdTab = true
		c.logger.Debugf("TabController:Connect", "tid:%s created", tab.ID)
	}
	c.tab = tab

	c.state = StateTransportOpen
	conn, err := common.OpenConnection(ctx, tab.WebSocketDebuggerURL, c.logger)
	if err != nil {
		return err
	}
	c.conn = conn
	c.page = common.NewPage(conn, tab, storage.NewFilePersister(c.fs), c.logger)

	c.state = StateReady
	c.logger.Infof("TabController:Connect", "connected to tab %s on %s", tab.ID, inst.BaseURL)

	return nil
}

// Close tears everything down in order: connection, tab, process, user
// data dir. Each step is best effort; failures are logged. Close can be
// called any number of times.
//
// Actions hold the controller lock while they run, so a Close from another
// goroutine or the finalizer waits for the running action to finish, up to
// the full timeout of a WaitForSelector.
func (c *TabController) Close(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed || c.state == StateClosing {
		return
	}
	c.state = StateClosing
	c.release(ctx)
	c.state = StateClosed
	runtime.SetFinalizer(c, nil)
}

// release frees whatever has been acquired. It must be called with mu held.
func (c *TabController) release(ctx context.Context) {
	// Cleanup must run even when the caller's context is already done.
	ctx = context.WithoutCancel(ctx)

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.page = nil
	}

	if c.tab.ID != "" && c.ownsTab() {
		c.devtools.CloseTab(ctx, c.tab.ID)
	}
	c.tab = common.TabInfo{}
	c.createdTab = false

	if c.inst != nil && c.inst.Process != nil {
		if c.opts.KeepAlive {
			c.logger.Infof("TabController:Close", "keeping browser pid:%d alive on %s", c.inst.Process.Pid(), c.inst.BaseURL)
		} else {
			c.stopProcess(c.inst)
		}
	}
	c.inst = nil
}

// ownsTab reports whether closing the tab is ours to do.
func (c *TabController) ownsTab() bool {
	if c.opts.KeepAlive {
		return false
	}
	// A tab of an adopted browser is only closed if we opened it.
	return c.createdTab || !c.inst.Adopted()
}

func (c *TabController) stopProcess(inst *Instance) {
	proc := inst.Process
	pids := proc.Descendants()

	if err := proc.Terminate(gracefulShutdownTimeout); err != nil {
		c.logger.Warnf("TabController:Close", "pid:%d terminate: %v", proc.Pid(), err)
	}
	if err := proc.KillTree(pids); err != nil {
		c.logger.Warnf("TabController:Close", "pid:%d kill tree: %v", proc.Pid(), err)
	}
	if inst.DataDir != nil {
		if err := inst.DataDir.Cleanup(); err != nil {
			c.logger.Warnf("TabController:Close", "%v", err)
		}
	}
	c.logger.Debugf("TabController:Close", "pid:%d stopped", proc.Pid())
}

// Port returns the debug port of the session, or 0 when not connected.
func (c *TabController) Port() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inst == nil {
		return 0
	}
	return c.inst.Port
}

// BaseURL returns the debugging endpoint of the session.
func (c *TabController) BaseURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inst == nil {
		return ""
	}
	return c.inst.BaseURL
}

// TabID returns the id of the controlled tab.
func (c *TabController) TabID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tab.ID
}

// WebSocketURL returns the CDP URL of the controlled tab.
func (c *TabController) WebSocketURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tab.WebSocketDebuggerURL
}

// Pid returns the pid of the launched browser, or -1 when none was
// launched.
func (c *TabController) Pid() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inst == nil || c.inst.Process == nil {
		return -1
	}
	return c.inst.Process.Pid()
}

// Adopted reports whether the session runs on a browser that was already
// running.
func (c *TabController) Adopted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inst != nil && c.inst.Adopted()
}

// withPage runs fn with the page while holding the controller lock, so
// actions are serialized and cannot race with Close.
func (c *TabController) withPage(fn func(*common.Page) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReady {
		return fmt.Errorf("%w: controller is %s", common.ErrNotConnected, c.state)
	}
	return fn(c.page)
}

// Navigate starts loading url in the tab.
func (c *TabController) Navigate(ctx context.Context, url string) error {
	return c.withPage(func(p *common.Page) error {
		return p.Navigate(ctx, url)
	})
}

// Evaluate runs script in the tab and returns its value.
func (c *TabController) Evaluate(ctx context.Context, script string, args ...any) (any, error) {
	var v any
	err := c.withPage(func(p *common.Page) error {
		var err error
		v, err = p.EvaluateWithArgs(ctx, script, args...)
		return err
	})
	return v, err
}

// Click clicks the first element matching selector.
func (c *TabController) Click(ctx context.Context, selector string) error {
	return c.withPage(func(p *common.Page) error {
		return p.Click(ctx, selector)
	})
}

// Type sets the value of the first element matching selector.
func (c *TabController) Type(ctx context.Context, selector, text string) error {
	return c.withPage(func(p *common.Page) error {
		return p.Type(ctx, selector, text)
	})
}

// WaitForSelector waits up to timeout for selector to match.
func (c *TabController) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return c.withPage(func(p *common.Page) error {
		return p.WaitForSelector(ctx, selector, timeout)
	})
}

// Screenshot writes a PNG of the viewport to path.
func (c *TabController) Screenshot(ctx context.Context, path string) error {
	return c.withPage(func(p *common.Page) error {
		return p.Screenshot(ctx, path)
	})
}

// Content returns the outer HTML of the document.
func (c *TabController) Content(ctx context.Context) (string, error) {
	var s string
	err := c.withPage(func(p *common.Page) error {
		var err error
		s, err = p.Content(ctx)
		return err
	})
	return s, err
}
