// Package log provides the category-aware logger used across cdptab.
package log

import (
	"fmt"
	"io"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger writes category-tagged entries to a logrus logger.
// A nil *Logger discards everything.
type Logger struct {
	Log *logrus.Logger

	mu             sync.Mutex
	last           time.Time
	debugOverride  bool
	categoryFilter *regexp.Regexp
}

// NewNullLogger returns a Logger that discards every entry.
func NewNullLogger() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(l, false, nil)
}

// New wraps logger. With debugOverride, entries below the logger level are
// still printed. A non-nil categoryFilter limits output to matching
// categories.
func New(logger *logrus.Logger, debugOverride bool, categoryFilter *regexp.Regexp) *Logger {
	return &Logger{
		Log:            logger,
		debugOverride:  debugOverride,
		categoryFilter: categoryFilter,
	}
}

func (l *Logger) Tracef(category string, msg string, args ...any) {
	l.Logf(logrus.TraceLevel, category, msg, args...)
}

func (l *Logger) Debugf(category string, msg string, args ...any) {
	l.Logf(logrus.DebugLevel, category, msg, args...)
}

func (l *Logger) Infof(category string, msg string, args ...any) {
	l.Logf(logrus.InfoLevel, category, msg, args...)
}

func (l *Logger) Warnf(category string, msg string, args ...any) {
	l.Logf(logrus.WarnLevel, category, msg, args...)
}

func (l *Logger) Errorf(category string, msg string, args ...any) {
	l.Logf(logrus.ErrorLevel, category, msg, args...)
}

// Logf logs msg at level under the given category.
func (l *Logger) Logf(level logrus.Level, category string, msg string, args ...any) {
	if l == nil {
		return
	}
	below := l.Log != nil && l.Log.GetLevel() < level
	if below && !l.debugOverride {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := l.sinceLast()
	if l.categoryFilter != nil && !l.categoryFilter.MatchString(category) {
		return
	}

	if l.Log == nil {
		magenta := color.New(color.FgMagenta).SprintFunc()
		fmt.Printf("%s [%d]: %s - %s ms\n", //nolint:forbidigo
			magenta(category), goroutineID(), fmt.Sprintf(msg, args...), magenta(elapsed.Milliseconds()))
		return
	}

	entry := l.Log.WithFields(logrus.Fields{
		"category":  category,
		"elapsed":   fmt.Sprintf("%d ms", elapsed.Milliseconds()),
		"goroutine": goroutineID(),
	})
	if below {
		entry.Printf(msg, args...)
		return
	}
	entry.Logf(level, msg, args...)
}

// sinceLast returns the time since the previous entry, zero for the first.
// The caller holds l.mu.
func (l *Logger) sinceLast() time.Duration {
	now := time.Now()
	defer func() { l.last = now }()
	if l.last.IsZero() {
		return 0
	}
	return now.Sub(l.last)
}

// SetLevel parses one of the logrus level names (panic, fatal, error,
// warn, info, debug, trace) and applies it.
func (l *Logger) SetLevel(level string) error {
	pl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.Log.SetLevel(pl)
	return nil
}

// SetCategoryFilter compiles filter and only lets matching categories
// through. An empty filter disables filtering.
func (l *Logger) SetCategoryFilter(filter string) error {
	var re *regexp.Regexp
	if filter != "" {
		var err error
		if re, err = regexp.Compile(filter); err != nil {
			return fmt.Errorf("invalid log category filter %q: %w", filter, err)
		}
	}

	l.mu.Lock()
	l.categoryFilter = re
	l.mu.Unlock()
	return nil
}

// DebugMode reports whether debug entries are printed.
func (l *Logger) DebugMode() bool {
	if l == nil || l.Log == nil {
		return false
	}
	return l.Log.GetLevel() >= logrus.DebugLevel
}

func goroutineID() int {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := strings.Fields(strings.TrimPrefix(string(buf[:n]), "goroutine "))[0]
	id, err := strconv.Atoi(field)
	if err != nil {
		return -1
	}
	return id
}
