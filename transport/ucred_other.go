//go:build !linux

package transport

import (
	"errors"
	"net"
)

func peerUID(conn *net.UnixConn) (uint32, error) {
	return 0, errors.New("peer credentials not supported on this platform")
}
