package common

import (
	"bytes"
	"os/exec"
	"path"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

func configureProcess(cmd *exec.Cmd, killWithParent bool) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if killWithParent {
		cmd.SysProcAttr.Pdeathsig = unix.SIGKILL
	}
}

func descendants(pid int) []int {
	return procDescendants(afero.NewOsFs(), "/proc", pid)
}

// procDescendants walks procfs and returns every process below root,
// breadth first.
func procDescendants(fs afero.Fs, procDir string, root int) []int {
	entries, err := afero.ReadDir(fs, procDir)
	if err != nil {
		return nil
	}

	children := make(map[int][]int)
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || !e.IsDir() {
			continue
		}
		stat, err := afero.ReadFile(fs, path.Join(procDir, e.Name(), "stat"))
		if err != nil {
			continue // the process is gone
		}
		if ppid, ok := parseStatPPID(stat); ok {
			children[ppid] = append(children[ppid], pid)
		}
	}

	var out []int
	queue := []int{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range children[cur] {
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out
}

// parseStatPPID reads the parent pid from /proc/<pid>/stat:
// "pid (comm) state ppid ...". comm may hold spaces and parentheses.
func parseStatPPID(stat []byte) (int, bool) {
	i := bytes.LastIndexByte(stat, ')')
	if i < 0 || i+1 >= len(stat) {
		return 0, false
	}
	fields := strings.Fields(string(stat[i+1:]))
	if len(fields) < 2 {
		return 0, false
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return ppid, true
}
