// Package state holds what the cdptab commands share with the process they
// run in, so tests can swap it out.
package state

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/term"

	"github.com/liuxd6825/cdptab/env"
)

// GlobalState contains the process-wide dependencies of the commands:
// filesystem, environment, standard streams, signals and the logger.
type GlobalState struct {
	Ctx context.Context

	FS      afero.Fs
	CmdArgs []string
	Env     map[string]string

	DefaultFlags, Flags GlobalOptions

	OutMutex       *sync.Mutex
	Stdout, Stderr *ConsoleWriter
	Stdin          io.Reader

	// TermWidth returns the width of the terminal stdout is attached to.
	TermWidth func() int

	OSExit       func(int)
	SignalNotify func(chan<- os.Signal, ...os.Signal)
	SignalStop   func(chan<- os.Signal)

	Logger *logrus.Logger
}

// NewGlobalState returns a GlobalState backed by the real process.
func NewGlobalState(ctx context.Context) *GlobalState {
	isStdoutTTY := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	isStderrTTY := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	outMutex := &sync.Mutex{}
	stdout := &ConsoleWriter{Writer: colorable.NewColorableStdout(), IsTTY: isStdoutTTY, Mutex: outMutex}
	stderr := &ConsoleWriter{Writer: colorable.NewColorableStderr(), IsTTY: isStderrTTY, Mutex: outMutex}

	envVars := env.Map(os.Environ())
	confDir, err := os.UserConfigDir()
	if err != nil {
		confDir = ".config"
	}
	defaultFlags := GetDefaultGlobalOptions(confDir)

	return &GlobalState{
		Ctx:          ctx,
		FS:           afero.NewOsFs(),
		CmdArgs:      os.Args,
		Env:          envVars,
		DefaultFlags: defaultFlags,
		Flags:        ConsolidateGlobalOptions(defaultFlags, envVars),
		OutMutex:     outMutex,
		Stdout:       stdout,
		Stderr:       stderr,
		Stdin:        os.Stdin,
		TermWidth:    func() int { return termWidth(stdout.IsTTY) },
		OSExit:       os.Exit,
		SignalNotify: signal.Notify,
		SignalStop:   signal.Stop,
		Logger: &logrus.Logger{
			Out:       stderr,
			Formatter: new(logrus.TextFormatter),
			Hooks:     make(logrus.LevelHooks),
			Level:     logrus.InfoLevel,
		},
	}
}

const defaultTermWidth = 80

// termWidth falls back to defaultTermWidth when stdout is not a terminal or
// its size cannot be read.
func termWidth(isTTY bool) int {
	if !isTTY {
		return defaultTermWidth
	}
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if width <= 0 || err != nil {
		return defaultTermWidth
	}
	return width
}

// LookupEnv reads the environment captured in the state.
func (gs *GlobalState) LookupEnv(key string) (string, bool) {
	return env.ConstLookup(gs.Env)(key)
}

// ConsoleWriter syncs writes to a standard stream with a mutex shared by
// stdout and stderr.
type ConsoleWriter struct {
	io.Writer
	IsTTY bool
	Mutex *sync.Mutex
}

func (w *ConsoleWriter) Write(p []byte) (n int, err error) {
	w.Mutex.Lock()
	defer w.Mutex.Unlock()
	return w.Writer.Write(p)
}
