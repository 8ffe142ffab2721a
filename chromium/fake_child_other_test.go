//go:build !linux

package chromium

import "errors"

func spawnDetachedChild(string, ...string) (int, error) {
	return 0, errors.New("detached children are only faked on linux")
}

func procAlive(int) bool { return false }
