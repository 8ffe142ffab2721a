package common

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/liuxd6825/cdptab/log"
)

const (
	// processOutputLimit caps the captured bytes per stream.
	processOutputLimit = 64 << 10
	// outputDrainTimeout bounds how long Output waits for the pipes to
	// reach EOF after the process exited. Children inherit the pipes and
	// may keep them open.
	outputDrainTimeout = time.Second
	killWaitTimeout    = 2 * time.Second
)

// BrowserProcess is a browser process started by cdptab.
type BrowserProcess struct {
	cmd  *exec.Cmd
	pid  int
	path string

	done    chan struct{}
	exitErr error // written before done is closed

	stdout, stderr *outputBuffer
	drained        chan struct{}

	logger *log.Logger
}

// NewLocalBrowserProcess starts the browser at path with args. The process
// runs in its own process group. With killWithParent set, the process is
// also killed if cdptab dies, where the platform supports it.
func NewLocalBrowserProcess(path string, args []string, killWithParent bool, logger *log.Logger) (*BrowserProcess, error) {
	cmd := exec.Command(path, args...)
	configureProcess(cmd, killWithParent)

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	err = cmd.Start()
	// The child owns its copies of the write ends now.
	_ = outW.Close()
	_ = errW.Close()
	if err != nil {
		_ = outR.Close()
		_ = errR.Close()
		reason := fmt.Sprintf("starting %s: %v", path, err)
		if errors.Is(err, os.ErrNotExist) {
			reason = fmt.Sprintf("file does not exist: %s", path)
		}
		return nil, &StartupError{Kind: ErrProcessStartupFailed, Reason: reason, ExitCode: -1}
	}

	p := &BrowserProcess{
		cmd:     cmd,
		pid:     cmd.Process.Pid,
		path:    path,
		done:    make(chan struct{}),
		stdout:  newOutputBuffer(processOutputLimit),
		stderr:  newOutputBuffer(processOutputLimit),
		drained: make(chan struct{}),
		logger:  logger,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go p.drain(&wg, outR, p.stdout)
	go p.drain(&wg, errR, p.stderr)
	go func() {
		wg.Wait()
		close(p.drained)
	}()

	go func() {
		defer close(p.done)
		p.exitErr = cmd.Wait()
		p.logger.Debugf("BrowserProcess:Wait", "pid:%d exited: %v", p.pid, p.exitErr)
	}()

	logger.Debugf("BrowserProcess:Start", "pid:%d path:%s", p.pid, path)

	return p, nil
}

func (p *BrowserProcess) drain(wg *sync.WaitGroup, r io.ReadCloser, into *outputBuffer) {
	defer wg.Done()
	defer r.Close() //nolint:errcheck

	if _, err := io.Copy(into, r); err != nil {
		p.logger.Debugf("BrowserProcess:drain", "pid:%d err:%v", p.pid, err)
	}
}

// Pid returns the browser process ID.
func (p *BrowserProcess) Pid() int {
	return p.pid
}

// Done is closed when the process has exited.
func (p *BrowserProcess) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has exited.
func (p *BrowserProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit code, or -1 while the process runs or when it
// was killed by a signal.
func (p *BrowserProcess) ExitCode() int {
	if !p.Exited() || p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// Output returns what the process wrote so far. After exit it waits a
// bounded time for the pipes to drain.
func (p *BrowserProcess) Output() (stdout, stderr string) {
	if p.Exited() {
		select {
		case <-p.drained:
		case <-time.After(outputDrainTimeout):
		}
	}
	return p.stdout.String(), p.stderr.String()
}

// StartupError wraps kind and reason with the process exit code and output.
func (p *BrowserProcess) StartupError(kind error, reason string) *StartupError {
	stdout, stderr := p.Output()
	return &StartupError{
		Kind:     kind,
		Reason:   reason,
		ExitCode: p.ExitCode(),
		Stdout:   stdout,
		Stderr:   stderr,
	}
}

// Terminate asks the process to exit and waits up to timeout before
// killing it. It is a no-op once the process has exited.
func (p *BrowserProcess) Terminate(timeout time.Duration) error {
	if p.Exited() {
		return nil
	}

	p.logger.Debugf("BrowserProcess:Terminate", "pid:%d graceful timeout:%s", p.pid, timeout)
	if err := terminateProcess(p.cmd.Process); err != nil {
		p.logger.Debugf("BrowserProcess:Terminate", "pid:%d signal: %v", p.pid, err)
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
	}

	return p.Kill()
}

// Kill forcefully stops the process and waits briefly for it to be reaped.
func (p *BrowserProcess) Kill() error {
	if p.Exited() {
		return nil
	}

	p.logger.Debugf("BrowserProcess:Kill", "pid:%d", p.pid)
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing browser process %d: %w", p.pid, err)
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(killWaitTimeout):
		return fmt.Errorf("browser process %d did not exit after kill", p.pid)
	}
}

// Descendants lists the processes below the browser process. Take the
// snapshot before terminating it: orphans get reparented.
func (p *BrowserProcess) Descendants() []int {
	return descendants(p.pid)
}

// KillTree kills the browser's process group and the given processes,
// typically a snapshot from Descendants.
func (p *BrowserProcess) KillTree(pids []int) error {
	var errs []error
	if err := killProcessGroup(p.pid); err != nil {
		errs = append(errs, err)
	}
	for _, pid := range pids {
		if err := killProcess(pid); err != nil {
			errs = append(errs, err)
		}
	}
	if len(pids) > 0 {
		p.logger.Debugf("BrowserProcess:KillTree", "pid:%d killed %d descendants", p.pid, len(pids))
	}
	return errors.Join(errs...)
}

// outputBuffer keeps the last limit bytes written to it.
type outputBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func newOutputBuffer(limit int) *outputBuffer {
	return &outputBuffer{limit: limit}
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
