// Package tests holds helpers shared by the package tests.
package tests

import (
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/liuxd6825/cdptab/log"
)

// LogCache is a logrus hook that keeps every entry it sees so tests can
// assert on what was logged.
type LogCache struct {
	HookedLevels []logrus.Level

	mu      sync.RWMutex
	entries []logrus.Entry
}

var _ logrus.Hook = &LogCache{}

// Levels returns the levels the hook fires for.
func (lc *LogCache) Levels() []logrus.Level {
	return lc.HookedLevels
}

// Fire stores the entry.
func (lc *LogCache) Fire(e *logrus.Entry) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.entries = append(lc.entries, *e)
	return nil
}

// Contains reports whether any cached message contains msg.
func (lc *LogCache) Contains(msg string) bool {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	for _, e := range lc.entries {
		if strings.Contains(e.Message, msg) {
			return true
		}
	}
	return false
}

// Entries returns a copy of the cached entries.
func (lc *LogCache) Entries() []logrus.Entry {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return append([]logrus.Entry(nil), lc.entries...)
}

// NewLogger returns a debug level logger whose entries are cached and
// otherwise discarded.
func NewLogger(tb testing.TB) (*log.Logger, *LogCache) {
	tb.Helper()

	levels, err := log.LevelsFrom("debug")
	require.NoError(tb, err)

	lc := &LogCache{HookedLevels: levels}
	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	l.SetOutput(io.Discard)
	l.AddHook(lc)

	return log.New(l, false, nil), lc
}
