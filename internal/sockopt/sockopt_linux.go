//go:build linux

// Package sockopt carries the Linux-only socket options the proxy needs: a
// best-effort SO_MARK on outbound sockets, and SO_ORIGINAL_DST for
// recovering the pre-NAT destination of a connection redirected by
// iptables REDIRECT/TPROXY.
package sockopt

import (
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/corridorproxy/corridor/internal/constants"
)

// Control is a net.Dialer.Control callback that sets SO_MARK on the
// outbound socket before connect(2). Failures (e.g. missing CAP_NET_ADMIN
// in an unprivileged container) are swallowed; SO_MARK is advisory.
func Control(_, _ string, c syscall.RawConn) error {
	return c.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_MARK, constants.SOMarkValue)
	})
}

// OriginalDst reads SO_ORIGINAL_DST off an accepted TCP connection,
// recovering the address a client actually dialed before an iptables
// REDIRECT rule rewrote it to the proxy's listener.
func OriginalDst(conn *net.TCPConn) (netip.AddrPort, error) {
	sc, err := conn.SyscallConn()
	if err != nil {
		return netip.AddrPort{}, err
	}

	var mreq *unix.IPv6Mreq
	var sockErr error
	ctrlErr := sc.Control(func(fd uintptr) {
		mreq, sockErr = unix.GetsockoptIPv6Mreq(int(fd), unix.IPPROTO_IP, unix.SO_ORIGINAL_DST)
	})
	if ctrlErr != nil {
		return netip.AddrPort{}, ctrlErr
	}
	if sockErr != nil {
		return netip.AddrPort{}, sockErr
	}

	// The kernel writes a struct sockaddr_in (family, port, addr, 8 bytes of
	// padding) into the 16-byte Multiaddr field: port at offset 2 (2 bytes,
	// network order), address at offset 4 (4 bytes).
	raw := mreq.Multiaddr
	port := uint16(raw[2])<<8 | uint16(raw[3])
	ip := netip.AddrFrom4([4]byte{raw[4], raw[5], raw[6], raw[7]})
	return netip.AddrPortFrom(ip, port), nil
}
