package chromium

import (
	"fmt"
	"net"
	"strconv"

	"github.com/liuxd6825/cdptab/common"
)

// portRangeSize is how many consecutive ports are probed, starting at the
// preferred one.
const portRangeSize = 78

const loopbackHost = "127.0.0.1"

// findPort returns the first port in [preferred, preferred+portRangeSize)
// that can be bound on the loopback interface.
func findPort(preferred int) (int, error) {
	for p := preferred; p < preferred+portRangeSize && p <= 65535; p++ {
		if portFree(p) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w in [%d, %d)", common.ErrNoPortAvailable, preferred, preferred+portRangeSize)
}

func portFree(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort(loopbackHost, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
