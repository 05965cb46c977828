//go:build linux || darwin || freebsd

package llrp

import (
	"net"

	"golang.org/x/sys/unix"
)

// tuneSocket applies the low-level keepalive/nodelay tuning the portable
// net.TCPConn API doesn't expose, mirroring the original's direct
// socket.setsockopt(SOL_SOCKET, SO_KEEPALIVE, True) call.
func tuneSocket(conn *net.TCPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
		if sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
