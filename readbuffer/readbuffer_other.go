//go:build !linux && !windows

package readbuffer

import "fmt"

func readBuffer(packetConn) (int, error) {
	return 0, fmt.Errorf("read buffer size is unimplemented on this operating system")
}
