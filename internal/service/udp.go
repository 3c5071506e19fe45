package service

import (
	"net"
	"sync"

	cerrors "github.com/corridorproxy/corridor/internal/errors"
)

// udpRecvBuf bounds a single recvfrom call.
const udpRecvBuf = 64 * 1024

// UDP is the datagram listener variant. A logical "socket" is a
// (bound-port, peer-address) pair: the first datagram from a peer spawns a
// new RawConn pre-seeded with that datagram (returned by its first
// ReadSome); subsequent datagrams from the same peer are
// routed to the existing socket's queue instead of spawning a new one.
type UDP struct{}

// Start implements Listener.
func (u *UDP) Start(bind string, out chan<- Accepted, shutdown <-chan struct{}) error {
	addr, err := net.ResolveUDPAddr("udp", bind)
	if err != nil {
		return cerrors.NewBootstrapError("udp_resolve", err)
	}
	pc, err := net.ListenUDP("udp", addr)
	if err != nil {
		return cerrors.NewBootstrapError("udp_listen", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-shutdown:
			pc.Close()
		case <-done:
		}
	}()

	demux := &udpDemux{pc: pc, peers: make(map[string]*udpConn)}

	buf := make([]byte, udpRecvBuf)
	for {
		n, raddr, err := pc.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-shutdown:
				return nil
			default:
				return cerrors.NewBootstrapError("udp_recv", err)
			}
		}
		payload := append([]byte(nil), buf[:n]...)

		sock, first := demux.get(raddr)
		if first {
			sock.firstDatagram = payload
			select {
			case out <- Accepted{Conn: sock, Kind: KindUDP}:
			case <-shutdown:
				return nil
			}
			continue
		}
		sock.push(payload)
	}
}

// udpDemux maps peer address strings to the logical socket serving them.
type udpDemux struct {
	mu    sync.Mutex
	pc    *net.UDPConn
	peers map[string]*udpConn
}

func (d *udpDemux) get(raddr *net.UDPAddr) (*udpConn, bool) {
	key := raddr.String()
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.peers[key]; ok {
		return s, false
	}
	s := &udpConn{pc: d.pc, raddr: raddr, inbox: make(chan []byte, 16)}
	d.peers[key] = s
	return s, true
}

// udpConn is one logical UDP "pseudo-connection": a fixed peer address
// pinned against the shared bound port. ReadSome drains the first
// pre-seeded datagram, then subsequent ones demuxed by peer address.
type udpConn struct {
	pc            *net.UDPConn
	raddr         *net.UDPAddr
	firstDatagram []byte
	consumedFirst bool
	inbox         chan []byte

	mu     sync.Mutex
	closed bool
}

// Datagram marks udpConn as a breader.DatagramSource.
func (c *udpConn) Datagram() {}

func (c *udpConn) ReadSome(p []byte) (int, error) {
	if !c.consumedFirst {
		c.consumedFirst = true
		n := copy(p, c.firstDatagram)
		return n, nil
	}
	pkt := <-c.inbox
	if pkt == nil {
		return 0, cerrors.NewIOError("udp_read", errUDPClosed)
	}
	n := copy(p, pkt)
	return n, nil
}

func (c *udpConn) Send(buf []byte) error {
	_, err := c.pc.WriteToUDP(buf, c.raddr)
	return err
}

func (c *udpConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.inbox)
	return nil
}

func (c *udpConn) RemoteAddr() string { return c.raddr.String() }

func (c *udpConn) push(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.inbox <- payload:
	default:
		// Backpressure from a stalled consumer drops the packet rather
		// than blocking the shared recv loop.
	}
}

type udpServiceError string

func (e udpServiceError) Error() string { return string(e) }

const errUDPClosed = udpServiceError("service: udp pseudo-connection closed")
