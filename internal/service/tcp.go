package service

import (
	"net"
	"net/netip"

	cerrors "github.com/corridorproxy/corridor/internal/errors"
	"github.com/corridorproxy/corridor/internal/sockopt"
)

// TCP is the plain-stream listener variant.
type TCP struct{}

// Start implements Listener.
func (t *TCP) Start(bind string, out chan<- Accepted, shutdown <-chan struct{}) error {
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return cerrors.NewBootstrapError("tcp_listen", err)
	}
	return acceptLoop(ln, KindTCP, func(c net.Conn) RawConn { return &tcpConn{Conn: c} }, out, shutdown)
}

// acceptLoop is shared by the Tcp and Tls listeners: both produce a
// net.Listener and differ only in how the accepted net.Conn is wrapped.
func acceptLoop(ln net.Listener, kind Kind, wrap func(net.Conn) RawConn, out chan<- Accepted, shutdown <-chan struct{}) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-shutdown:
			ln.Close()
		case <-done:
		}
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-shutdown:
				return nil
			default:
				return cerrors.NewBootstrapError("tcp_accept", err)
			}
		}
		select {
		case out <- Accepted{Conn: wrap(c), Kind: kind}:
		case <-shutdown:
			c.Close()
			return nil
		}
	}
}

// tcpConn adapts a net.Conn to RawConn.
type tcpConn struct {
	net.Conn
}

func (c *tcpConn) ReadSome(p []byte) (int, error) { return c.Conn.Read(p) }

func (c *tcpConn) Send(buf []byte) error {
	_, err := c.Conn.Write(buf)
	return err
}

func (c *tcpConn) RemoteAddr() string {
	if c.Conn == nil || c.Conn.RemoteAddr() == nil {
		return ""
	}
	return c.Conn.RemoteAddr().String()
}

// OriginalDst implements OriginalDstProvider for the Linux REDIRECT fallback.
func (c *tcpConn) OriginalDst() (netip.AddrPort, bool) {
	tc, ok := c.Conn.(*net.TCPConn)
	if !ok {
		return netip.AddrPort{}, false
	}
	addr, err := sockopt.OriginalDst(tc)
	if err != nil {
		return netip.AddrPort{}, false
	}
	return addr, true
}
