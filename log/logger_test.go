package log

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogFormatter struct{}

func (f *testLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(entry.Data["category"].(string) + ":" + entry.Message + "\n"), nil
}

func newBufferedLogger(t *testing.T, level logrus.Level) (*Logger, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(level)
	l.SetFormatter(&testLogFormatter{})

	return New(l, false, nil), &buf
}

func TestLoggerLevels(t *testing.T) {
	t.Parallel()

	logger, buf := newBufferedLogger(t, logrus.InfoLevel)

	logger.Debugf("cdp:send", "hidden %d", 1)
	logger.Infof("Allocator:Setup", "visible %d", 2)
	logger.Warnf("TabController:Close", "warned")

	assert.Equal(t, "Allocator:Setup:visible 2\nTabController:Close:warned\n", buf.String())
}

func TestLoggerCategoryFilter(t *testing.T) {
	t.Parallel()

	logger, buf := newBufferedLogger(t, logrus.DebugLevel)
	require.NoError(t, logger.SetCategoryFilter("^cdp:"))

	logger.Debugf("cdp:send", "-> %s", "Page.enable")
	logger.Debugf("DevTools:ListTabs", "skipped")

	assert.Equal(t, "cdp:send:-> Page.enable\n", buf.String())

	require.NoError(t, logger.SetCategoryFilter(""))
	logger.Debugf("DevTools:ListTabs", "now visible")
	assert.Contains(t, buf.String(), "DevTools:ListTabs:now visible")

	assert.Error(t, logger.SetCategoryFilter("("))
}

func TestLoggerSetLevel(t *testing.T) {
	t.Parallel()

	logger, _ := newBufferedLogger(t, logrus.InfoLevel)
	assert.False(t, logger.DebugMode())

	require.NoError(t, logger.SetLevel("debug"))
	assert.True(t, logger.DebugMode())

	assert.Error(t, logger.SetLevel("chatty"))
}

func TestNilLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var logger *Logger
	assert.NotPanics(t, func() {
		logger.Debugf("any", "message %d", 1)
		logger.Errorf("any", "message")
	})
	assert.False(t, logger.DebugMode())
	assert.NotPanics(t, func() { NewNullLogger().Errorf("any", "discarded") })
}

func TestLevelsFrom(t *testing.T) {
	t.Parallel()

	levels, err := LevelsFrom("warn")
	require.NoError(t, err)
	assert.Equal(t, []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}, levels)

	_, err = LevelsFrom("nope")
	assert.EqualError(t, err, "unknown log level nope")
}
