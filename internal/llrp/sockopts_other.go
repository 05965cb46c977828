//go:build !linux && !darwin && !freebsd

package llrp

import "net"

// tuneSocket is a no-op on platforms without the unix socket option set;
// net.TCPConn.SetKeepAlive (called unconditionally by the dialer) still
// applies there.
func tuneSocket(conn *net.TCPConn) error {
	return nil
}
