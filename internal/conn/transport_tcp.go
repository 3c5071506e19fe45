package conn

import (
	"math/rand"
	"net"

	"github.com/corridorproxy/corridor/internal/constants"
	cerrors "github.com/corridorproxy/corridor/internal/errors"
)

// tcpTransport adapts a stream net.Conn (plain TCP or TLS) to Transport.
type tcpTransport struct {
	net.Conn
}

func (t *tcpTransport) ReadSome(p []byte) (int, error) { return t.Conn.Read(p) }

func (t *tcpTransport) Send(buf []byte) error {
	_, err := t.Conn.Write(buf)
	return err
}

func (t *tcpTransport) RemoteAddr() string {
	if t.Conn == nil || t.Conn.RemoteAddr() == nil {
		return ""
	}
	return t.Conn.RemoteAddr().String()
}

// udpPseudoConn is a "pseudo-connected" UDP peer: an ephemeral local port
// fixed against one destination address.
type udpPseudoConn struct {
	pc    *net.UDPConn
	raddr *net.UDPAddr
}

// dialUDPPseudoConn binds an ephemeral port in
// [UDPEphemeralPortLow, UDPEphemeralPortHigh] with up to
// UDPEphemeralPortTries retries, then fixes raddrStr as its peer.
func dialUDPPseudoConn(raddrStr string) (*udpPseudoConn, error) {
	raddr, err := net.ResolveUDPAddr("udp", raddrStr)
	if err != nil {
		return nil, cerrors.NewConnectError(raddrStr, err)
	}

	span := constants.UDPEphemeralPortHigh - constants.UDPEphemeralPortLow + 1
	var lastErr error
	for i := 0; i < constants.UDPEphemeralPortTries; i++ {
		port := constants.UDPEphemeralPortLow + rand.Intn(span)
		pc, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
		if err != nil {
			lastErr = err
			continue
		}
		return &udpPseudoConn{pc: pc, raddr: raddr}, nil
	}
	return nil, cerrors.NewConnectError(raddrStr, lastErr)
}

// Datagram marks udpPseudoConn as a breader.DatagramSource.
func (c *udpPseudoConn) Datagram() {}

func (c *udpPseudoConn) ReadSome(p []byte) (int, error) {
	n, _, err := c.pc.ReadFromUDP(p)
	return n, err
}

func (c *udpPseudoConn) Send(buf []byte) error {
	_, err := c.pc.WriteToUDP(buf, c.raddr)
	return err
}

func (c *udpPseudoConn) Close() error { return c.pc.Close() }

func (c *udpPseudoConn) RemoteAddr() string { return c.raddr.String() }
