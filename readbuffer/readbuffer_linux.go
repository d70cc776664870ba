//go:build linux

package readbuffer

import "syscall"

func readBuffer(conn packetConn) (int, error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}

	var v int
	var sockErr error

	err = rawConn.Control(func(fd uintptr) {
		v, sockErr = syscall.GetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_RCVBUF)
	})
	if err != nil {
		return 0, err
	}
	if sockErr != nil {
		return 0, sockErr
	}

	return v, nil
}
