//go:build unix

package chromium

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuxd6825/cdptab/common"
)

// launchOptions makes the controller launch the test binary as a fake
// browser with the given marker flags.
func launchOptions(t *testing.T, flags ...string) *common.BrowserOptions {
	t.Helper()

	opts := common.NewBrowserOptions()
	opts.BinaryPath = os.Args[0]
	opts.DebugPort = freePort(t)
	opts.StartupTimeout = 10 * time.Second
	opts.ExtraArgs = flags
	return opts
}

func processGone(pid int) bool {
	return errors.Is(syscall.Kill(pid, 0), syscall.ESRCH)
}

func TestTabControllerLaunch(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	c := NewTabController(launchOptions(t, fakeBrowserFlag), nil, WithFs(fs))

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	assert.False(t, c.Adopted())
	pid := c.Pid()
	assert.Positive(t, pid)
	assert.Equal(t, common.BaseURL(c.Port()), c.BaseURL())

	dirs, err := afero.Glob(fs, filepath.Join(os.TempDir(), tempDirGlob))
	require.NoError(t, err)
	assert.Len(t, dirs, 1)

	v, err := c.Evaluate(ctx, "20+22")
	require.NoError(t, err)
	assert.Equal(t, float64(42), v)

	c.Close(ctx)
	assert.Equal(t, -1, c.Pid())
	assert.True(t, processGone(pid), "browser pid %d still running", pid)

	dirs, err = afero.Glob(fs, filepath.Join(os.TempDir(), tempDirGlob))
	require.NoError(t, err)
	assert.Empty(t, dirs, "temporary user data dir not removed")
}

const tempDirGlob = "cdptab-chromium-*"

func TestTabControllerLaunchKeepAlive(t *testing.T) {
	t.Parallel()

	opts := launchOptions(t, fakeBrowserFlag)
	opts.KeepAlive = true
	c := NewTabController(opts, nil)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	pid := c.Pid()
	port := c.Port()
	c.Close(ctx)

	t.Cleanup(func() { _ = syscall.Kill(pid, syscall.SIGKILL) })
	assert.False(t, processGone(pid))

	// A second controller adopts the browser left running.
	opts.KeepAlive = false
	opts.DebugPort = port
	c2 := NewTabController(opts, nil)
	require.NoError(t, c2.Connect(ctx))
	assert.True(t, c2.Adopted())
	c2.Close(ctx)
	assert.False(t, processGone(pid), "an adopted browser is never terminated")
}

func TestTabControllerLaunchOccupiedPort(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", net.JoinHostPort(loopbackHost, "0"))
	require.NoError(t, err)
	srv := &http.Server{Handler: http.NotFoundHandler(), ReadHeaderTimeout: time.Second}
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })
	busy := l.Addr().(*net.TCPAddr).Port //nolint:forcetypeassert

	opts := launchOptions(t, fakeBrowserFlag)
	opts.DebugPort = busy
	c := NewTabController(opts, nil)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	defer c.Close(ctx)

	assert.False(t, c.Adopted())
	assert.Greater(t, c.Port(), busy)
	assert.Equal(t, common.BaseURL(c.Port()), c.BaseURL())
	assert.True(t, strings.HasPrefix(c.WebSocketURL(), "ws://127.0.0.1:"+strconv.Itoa(c.Port())+"/"))
}

func TestTabControllerLaunchCrash(t *testing.T) {
	t.Parallel()

	c := NewTabController(launchOptions(t, fakeCrashFlag), nil)
	err := c.Connect(context.Background())
	require.ErrorIs(t, err, common.ErrProcessStartupFailed)

	var se *common.StartupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, fakeCrashExitCode, se.ExitCode)
	assert.Contains(t, se.Stderr, fakeCrashMessage)
	assert.Contains(t, se.Stdout, "fake browser starting")
	assert.Contains(t, err.Error(), fakeCrashMessage)
	assert.Equal(t, StateUnconnected, c.State())
}

func TestTabControllerLaunchHang(t *testing.T) {
	t.Parallel()

	opts := launchOptions(t, fakeHangFlag)
	opts.StartupTimeout = time.Second
	c := NewTabController(opts, nil)

	start := time.Now()
	err := c.Connect(context.Background())
	require.ErrorIs(t, err, common.ErrStartupTimeout)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.ErrorContains(t, err, "after 1s")
	assert.Equal(t, -1, c.Pid())
}

func TestTabControllerLaunchContextCanceled(t *testing.T) {
	t.Parallel()

	c := NewTabController(launchOptions(t, fakeHangFlag), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := c.Connect(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateUnconnected, c.State())
}

func TestTabControllerLaunchKillsDescendants(t *testing.T) {
	t.Parallel()

	if _, err := spawnDetachedChild("/bin/true"); err != nil {
		t.Skip(err)
	}

	pidFile := filepath.Join(t.TempDir(), "child.pid")
	c := NewTabController(launchOptions(t, fakeBrowserFlag, fakeChildFlag+"="+pidFile), nil)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	var child int
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(pidFile) //nolint:gosec
		if err != nil {
			return false
		}
		child, err = strconv.Atoi(string(b))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	t.Cleanup(func() { _ = syscall.Kill(child, syscall.SIGKILL) })

	c.Close(ctx)
	assert.Eventually(t, func() bool { return !procAlive(child) }, 5*time.Second, 20*time.Millisecond,
		"child pid %d outlived the browser", child)
}
