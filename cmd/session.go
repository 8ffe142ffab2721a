package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/liuxd6825/cdptab/api"
	"github.com/liuxd6825/cdptab/browser"
	"github.com/liuxd6825/cdptab/cmd/state"
	"github.com/liuxd6825/cdptab/common"
	"github.com/liuxd6825/cdptab/errext"
	"github.com/liuxd6825/cdptab/errext/exitcodes"
	"github.com/liuxd6825/cdptab/log"
)

// exitCodes maps error kinds to process exit codes. Order matters: a wait
// timeout is also a script error.
var exitCodes = []struct { //nolint:gochecknoglobals
	kind error
	code exitcodes.ExitCode
}{
	{common.ErrBinaryNotFound, exitcodes.BrowserNotFound},
	{common.ErrNoPortAvailable, exitcodes.NoPortAvailable},
	{common.ErrProcessStartupFailed, exitcodes.StartupFailed},
	{common.ErrStartupTimeout, exitcodes.StartupFailed},
	{common.ErrTabCreationFailed, exitcodes.StartupFailed},
	{common.ErrConnectionFailed, exitcodes.ConnectionFailed},
	{common.ErrNotConnected, exitcodes.ConnectionFailed},
	{common.ErrInvalidState, exitcodes.GenericError},
	{common.ErrWaitTimeout, exitcodes.WaitTimeout},
	{common.ErrScript, exitcodes.ScriptException},
	{common.ErrCDPCommand, exitcodes.CommandFailed},
	{common.ErrFileWrite, exitcodes.FileWriteFailed},
}

func withExitCode(err error) error {
	for _, ec := range exitCodes {
		if errors.Is(err, ec.kind) {
			return errext.WithExitCodeIfNone(err, ec.code)
		}
	}
	return errext.WithExitCodeIfNone(err, exitcodes.GenericError)
}

// tabUnsupportedError is returned when a command needs a capability the
// configured backend lacks.
func tabUnsupportedError(command, backend string) error {
	return errext.WithHint(
		errext.WithExitCodeIfNone(
			fmt.Errorf("the %q command is not supported by the %s backend", command, backend),
			exitcodes.InvalidConfig,
		),
		"use --backend cdp or --backend playwright",
	)
}

// session starts the configured backend, runs fn against it and always
// stops it. SIGINT and SIGTERM cancel the context fn runs with.
type session struct {
	gs    *state.GlobalState
	flags *pflag.FlagSet
	opts  *common.BrowserOptions
	// newBrowser is swapped in tests.
	newBrowser func(*common.BrowserOptions, *log.Logger, ...browser.Option) (api.Browser, error)
}

func newSession(gs *state.GlobalState, flags *pflag.FlagSet) *session {
	return &session{gs: gs, flags: flags, newBrowser: browser.New}
}

func (s *session) logger(opts *common.BrowserOptions) (*log.Logger, error) {
	logger := log.New(s.gs.Logger, false, nil)
	if err := logger.SetCategoryFilter(opts.LogCategoryFilter); err != nil {
		return nil, errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	return logger, nil
}

func (s *session) run(fn func(context.Context, api.Browser) error) (err error) {
	opts, err := getBrowserOptions(s.gs, s.flags)
	if err != nil {
		return err
	}
	s.opts = opts
	logger, err := s.logger(opts)
	if err != nil {
		return err
	}
	b, err := s.newBrowser(opts, logger, browser.WithFs(s.gs.FS))
	if err != nil {
		return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}

	ctx, cancel := context.WithCancelCause(s.gs.Ctx)
	defer cancel(nil)

	sigC := make(chan os.Signal, 2)
	s.gs.SignalNotify(sigC, os.Interrupt, syscall.SIGTERM)
	defer s.gs.SignalStop(sigC)
	go func() {
		select {
		case sig := <-sigC:
			logger.Warnf("cmd:session", "stopping on signal %v", sig)
			cancel(&errext.InterruptError{Reason: errext.AbortSignal})
		case <-ctx.Done():
		}
	}()

	defer func() {
		// Teardown must run even when ctx was canceled by a signal.
		if serr := b.Stop(context.WithoutCancel(ctx)); serr != nil {
			logger.Warnf("cmd:session", "stopping the browser: %v", serr)
		}
		if cause := context.Cause(ctx); errext.IsInterruptError(cause) && err != nil {
			err = cause
		}
	}()

	if err := b.Start(ctx); err != nil {
		return withExitCode(err)
	}
	return withExitCode(fn(ctx, b))
}

// runTab is run for commands that need the full tab capability set.
func (s *session) runTab(command string, fn func(context.Context, api.Tab) error) error {
	return s.run(func(ctx context.Context, b api.Browser) error {
		tab, ok := b.(api.Tab)
		if !ok {
			return tabUnsupportedError(command, s.opts.Backend)
		}
		return fn(ctx, tab)
	})
}
