package chromium

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/afero"

	"github.com/liuxd6825/cdptab/common"
	"github.com/liuxd6825/cdptab/env"
	"github.com/liuxd6825/cdptab/log"
	"github.com/liuxd6825/cdptab/storage"
)

const (
	readinessPollInterval   = 250 * time.Millisecond
	progressLogInterval     = 5 * time.Second
	gracefulShutdownTimeout = 5 * time.Second
)

// Instance is a browser ready to accept debugging connections.
type Instance struct {
	// Process is nil when an already running browser was adopted.
	Process *common.BrowserProcess
	// DataDir is nil when an already running browser was adopted.
	DataDir *storage.Dir
	Port    int
	BaseURL string
}

// Adopted reports whether the instance was running before Setup.
func (i *Instance) Adopted() bool {
	return i.Process == nil
}

// Allocator adopts the browser listening on the configured debug port, or
// launches one.
type Allocator struct {
	opts   *common.BrowserOptions
	client *http.Client
	logger *log.Logger

	fs        afero.Fs
	lookPath  func(string) (string, error)
	envLookup env.LookupFunc
	goos      string
	isRoot    bool
}

// NewAllocator returns an allocator for opts that talks to debugging
// endpoints with client.
func NewAllocator(opts *common.BrowserOptions, client *http.Client, logger *log.Logger) *Allocator {
	return &Allocator{
		opts:      opts,
		client:    client,
		logger:    logger,
		fs:        afero.NewOsFs(),
		lookPath:  exec.LookPath,
		envLookup: env.Lookup,
		goos:      runtime.GOOS,
		isRoot:    os.Geteuid() == 0,
	}
}

// Setup returns a ready browser. A failure leaves nothing running.
func (a *Allocator) Setup(ctx context.Context) (*Instance, error) {
	probe := common.NewDevTools(common.BaseURL(a.opts.DebugPort), a.client, a.logger)
	if probe.IsAlive(ctx) {
		a.logger.Infof("Allocator:Setup", "adopting the browser listening on %s", probe.BaseURL())
		return &Instance{Port: a.opts.DebugPort, BaseURL: probe.BaseURL()}, nil
	}

	path, err := executablePath(a.opts.BinaryPath, a.goos, a.envLookup, a.lookPath, a.logger)
	if err != nil {
		return nil, err
	}
	port, err := findPort(a.opts.DebugPort)
	if err != nil {
		return nil, err
	}
	if port != a.opts.DebugPort {
		a.logger.Infof("Allocator:Setup", "port %d is busy, using %d", a.opts.DebugPort, port)
	}

	dataDir := &storage.Dir{Fs: a.fs}
	if err := dataDir.Make("", a.opts.UserDataDir); err != nil {
		return nil, &common.StartupError{Kind: common.ErrProcessStartupFailed, Reason: err.Error(), ExitCode: -1}
	}

	args := composeArgs(a.opts, port, dataDir.Dir, a.isRoot)
	a.logger.Debugf("Allocator:Setup", "launching %s %v", path, args)

	proc, err := common.NewLocalBrowserProcess(path, args, !a.opts.KeepAlive, a.logger)
	if err != nil {
		a.cleanupDataDir(dataDir)
		return nil, err
	}

	inst := &Instance{Process: proc, DataDir: dataDir, Port: port, BaseURL: common.BaseURL(port)}
	if err := a.waitReady(ctx, inst); err != nil {
		a.abort(inst)
		var se *common.StartupError
		if errors.As(err, &se) {
			// The output after termination is the most useful.
			se.Stdout, se.Stderr = proc.Output()
			se.ExitCode = proc.ExitCode()
		}
		return nil, err
	}
	a.logger.Infof("Allocator:Setup", "browser pid:%d ready on %s", proc.Pid(), inst.BaseURL)

	return inst, nil
}

// waitReady polls the debugging endpoint until it answers, the process
// dies, the startup timeout passes or ctx is done.
func (a *Allocator) waitReady(ctx context.Context, inst *Instance) error {
	proc := inst.Process
	if proc.Exited() {
		return &common.StartupError{Kind: common.ErrProcessStartupFailed, Reason: "exited immediately"}
	}

	dt := common.NewDevTools(inst.BaseURL, a.client, a.logger)
	timeout := a.opts.StartupTimeout
	start := time.Now()
	lastReport := start

	ticker := time.NewTicker(readinessPollInterval)
	defer ticker.Stop()

	for {
		if proc.Exited() {
			return &common.StartupError{
				Kind:   common.ErrProcessStartupFailed,
				Reason: "exited before the debugging endpoint came up",
			}
		}
		if dt.IsAlive(ctx) {
			return nil
		}

		now := time.Now()
		if now.Sub(start) >= timeout {
			return &common.StartupError{
				Kind:   common.ErrStartupTimeout,
				Reason: fmt.Sprintf("no debugging endpoint on port %d after %s", inst.Port, timeout),
			}
		}
		if now.Sub(lastReport) >= progressLogInterval {
			a.logger.Debugf("Allocator:waitReady", "pid:%d still waiting for %s (%s elapsed)",
				proc.Pid(), inst.BaseURL, now.Sub(start).Round(time.Second))
			lastReport = now
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for the browser to start: %w", ctx.Err())
		case <-proc.Done():
		case <-ticker.C:
		}
	}
}

// abort takes down a process that never became ready.
func (a *Allocator) abort(inst *Instance) {
	proc := inst.Process
	pids := proc.Descendants()
	if err := proc.Terminate(gracefulShutdownTimeout); err != nil {
		a.logger.Warnf("Allocator:abort", "pid:%d terminate: %v", proc.Pid(), err)
	}
	if err := proc.KillTree(pids); err != nil {
		a.logger.Warnf("Allocator:abort", "pid:%d kill tree: %v", proc.Pid(), err)
	}
	a.cleanupDataDir(inst.DataDir)
}

func (a *Allocator) cleanupDataDir(d *storage.Dir) {
	if err := d.Cleanup(); err != nil {
		a.logger.Warnf("Allocator:cleanup", "%v", err)
	}
}
