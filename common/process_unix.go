//go:build unix

package common

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func terminateProcess(p *os.Process) error {
	return p.Signal(unix.SIGTERM)
}

func killProcess(pid int) error {
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("killing process %d: %w", pid, err)
	}
	return nil
}

// killProcessGroup kills the group led by pid. The browser is started as a
// group leader, so its helpers share the group unless they left it.
func killProcessGroup(pid int) error {
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("killing process group %d: %w", pid, err)
	}
	return nil
}
