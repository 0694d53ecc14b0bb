//go:build !unix

package stream

import "net"

func tuneConn(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	return tc.SetNoDelay(true)
}

func shutdownConn(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	_ = tc.CloseRead()
	return tc.CloseWrite()
}
