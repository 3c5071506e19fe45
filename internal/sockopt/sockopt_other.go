//go:build !linux

package sockopt

import (
	"errors"
	"net"
	"net/netip"
	"syscall"
)

// Control is a no-op outside Linux: SO_MARK has no equivalent on other
// platforms.
func Control(_, _ string, _ syscall.RawConn) error {
	return nil
}

// OriginalDst is unsupported outside Linux, where SO_ORIGINAL_DST and
// iptables REDIRECT don't exist.
func OriginalDst(_ *net.TCPConn) (netip.AddrPort, error) {
	return netip.AddrPort{}, errors.New("sockopt: SO_ORIGINAL_DST is Linux-only")
}
