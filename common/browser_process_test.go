//go:build unix

package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuxd6825/cdptab/tests"
)

func TestBrowserProcessOutput(t *testing.T) {
	t.Parallel()

	logger, _ := tests.NewLogger(t)
	p, err := NewLocalBrowserProcess("/bin/sh", []string{"-c", "echo out; echo err >&2; exit 3"}, true, logger)
	require.NoError(t, err)
	assert.Positive(t, p.Pid())

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
	assert.True(t, p.Exited())
	assert.Equal(t, 3, p.ExitCode())

	stdout, stderr := p.Output()
	assert.Equal(t, "out\n", stdout)
	assert.Equal(t, "err\n", stderr)

	serr := p.StartupError(ErrProcessStartupFailed, "process exited")
	assert.ErrorIs(t, serr, ErrProcessStartupFailed)
	assert.Equal(t, 3, serr.ExitCode)
	assert.Contains(t, serr.Error(), "stderr: err")

	require.NoError(t, p.Terminate(time.Second))
}

func TestBrowserProcessMissingBinary(t *testing.T) {
	t.Parallel()

	_, err := NewLocalBrowserProcess("/nonexistent/chrome", nil, false, nil)
	require.ErrorIs(t, err, ErrProcessStartupFailed)
	assert.ErrorContains(t, err, "file does not exist: /nonexistent/chrome")
}

func TestBrowserProcessTerminate(t *testing.T) {
	t.Parallel()

	t.Run("graceful", func(t *testing.T) {
		t.Parallel()

		p, err := NewLocalBrowserProcess("/bin/sleep", []string{"30"}, true, nil)
		require.NoError(t, err)
		assert.False(t, p.Exited())
		assert.Equal(t, -1, p.ExitCode())

		start := time.Now()
		require.NoError(t, p.Terminate(5*time.Second))
		assert.True(t, p.Exited())
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("ignores_sigterm", func(t *testing.T) {
		t.Parallel()

		p, err := NewLocalBrowserProcess("/bin/sh", []string{"-c", `trap "" TERM; while true; do sleep 0.1; done`}, true, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = p.KillTree(nil) })

		// Let the shell install its trap.
		time.Sleep(200 * time.Millisecond)
		start := time.Now()
		require.NoError(t, p.Terminate(300*time.Millisecond))
		assert.True(t, p.Exited())
		assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
		assert.Equal(t, -1, p.ExitCode())
	})
}

func TestOutputBuffer(t *testing.T) {
	t.Parallel()

	b := newOutputBuffer(8)
	n, err := b.Write([]byte("hello "))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, _ = b.Write([]byte("world"))
	assert.Equal(t, "lo world", b.String())
}
