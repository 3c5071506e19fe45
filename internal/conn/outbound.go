package conn

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/corridorproxy/corridor/internal/acl"
	"github.com/corridorproxy/corridor/internal/address"
	"github.com/corridorproxy/corridor/internal/constants"
	cerrors "github.com/corridorproxy/corridor/internal/errors"
	"github.com/corridorproxy/corridor/internal/protocol"
)

// Outbound dials the chosen peer — the tunnel peer or the resolved
// destination — and runs the reverse-direction pump.
type Outbound struct {
	opts      *Options
	transport Transport
	sock      *wireSocket
	proto     protocol.Protocol
}

// NewOutbound builds an Outbound bound to opts. Dial must be called before
// Pump/Write/Close do anything useful.
func NewOutbound(opts *Options) *Outbound {
	return &Outbound{opts: opts}
}

// ViaTunnel reports whether dest should be relayed through the configured
// tunnel peer: client role, a peer is configured, the ACL verdict for dest
// isn't Deny, and — for a datagram-sniffed connection — --udp-over-tcp was
// set.
func ViaTunnel(opts *Options, dest address.Addr, isDatagram bool) bool {
	if opts.Role != RoleClient || opts.PeerAddr == "" {
		return false
	}
	if isDatagram && !opts.UDPOverTCP {
		return false
	}
	if opts.ACL == nil {
		return true
	}
	return opts.ACL.Verdict(dest.Host(), dest.Port) == acl.GroupAllow
}

// Dial resolves and connects the peer chosen for this connection. proto is
// the same Protocol instance bound to the Inbound side of this tunnel leg
// (or the destination-facing Inbound protocol for server role), so the two
// legs share one codec's key schedule and nonce counters.
func (ob *Outbound) Dial(ctx context.Context, resolved protocol.ResolvedResult, proto protocol.Protocol, useTunnel, isDatagram bool) error {
	ob.proto = proto

	if ob.opts.Role == RoleServer || !useTunnel {
		return ob.dialDirect(ctx, resolved.Destination, isDatagram)
	}
	return ob.dialTunnel(ctx)
}

func (ob *Outbound) dialDirect(ctx context.Context, dest address.Addr, isDatagram bool) error {
	resolved, err := ob.resolveDNS(ctx, dest)
	if err != nil {
		return err
	}

	if isDatagram {
		pc, err := dialUDPPseudoConn(resolved.String())
		if err != nil {
			return err
		}
		ob.transport = pc
		ob.sock = newSocket(pc, true)
		return nil
	}

	connCtx, cancel := context.WithTimeout(ctx, constants.TCPConnectTimeout)
	defer cancel()
	c, err := ob.opts.Dial(connCtx, "tcp", resolved.String())
	if err != nil {
		return cerrors.NewConnectError(resolved.String(), err)
	}
	ob.transport = &tcpTransport{Conn: c}
	ob.sock = newSocket(ob.transport, false)
	return nil
}

// dialTunnel connects the configured tunnel peer, over QUIC, TLS, or plain
// TCP depending on which of Options' tunnel dialers/configs is set.
func (ob *Outbound) dialTunnel(ctx context.Context) error {
	if ob.opts.TunnelQUICDial != nil {
		t, err := ob.opts.TunnelQUICDial(ctx, ob.opts.PeerAddr)
		if err != nil {
			return err
		}
		ob.transport = t
		ob.sock = newSocket(t, false)
		return nil
	}

	connCtx, cancel := context.WithTimeout(ctx, constants.TCPConnectTimeout)
	defer cancel()
	c, err := ob.opts.Dial(connCtx, "tcp", ob.opts.PeerAddr)
	if err != nil {
		return cerrors.NewConnectError(ob.opts.PeerAddr, err)
	}

	if ob.opts.TunnelTLSConfig != nil {
		tlsConn := tls.Client(c, ob.opts.TunnelTLSConfig)
		if err := tlsConn.HandshakeContext(connCtx); err != nil {
			_ = c.Close()
			return cerrors.NewTLSError(ob.opts.PeerAddr, err)
		}
		c = tlsConn
	}

	ob.transport = &tcpTransport{Conn: c}
	ob.sock = newSocket(ob.transport, false)
	return nil
}

func (ob *Outbound) resolveDNS(ctx context.Context, dest address.Addr) (address.Addr, error) {
	if dest.Type != address.TypeName {
		return dest, nil
	}
	lookupCtx, cancel := context.WithTimeout(ctx, constants.DNSLookupTimeout)
	defer cancel()
	return ob.opts.Resolver.Lookup(lookupCtx, dest)
}

// Write sends buf directly to the peer, bypassing the codec: used for
// bytes already in their final wire (or final plaintext, destination-side)
// form — the tunnel-encoded client_encode/server_decode output, or a
// server-role priming write of already-decrypted pending bytes.
func (ob *Outbound) Write(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	return ob.transport.Send(buf)
}

// Pump runs the per-tick outbound loop: client_decode (client role) or
// server_encode (server role), emitting events until error or shutdown.
func (ob *Outbound) Pump(ctx context.Context, events chan<- event, shutdown <-chan struct{}) {
	for {
		if dl, ok := ob.transport.(deadliner); ok && ob.opts.IdleTimeout > 0 {
			_ = dl.SetReadDeadline(time.Now().Add(ob.opts.IdleTimeout))
		}

		buf, err := ob.tick()
		if err != nil {
			select {
			case events <- event{kind: evOutboundError, err: err}:
			case <-shutdown:
			}
			return
		}

		kind := evClientDecodeDone
		if ob.opts.Role == RoleServer {
			kind = evServerEncodeDone
		}

		select {
		case events <- event{kind: kind, buf: buf}:
		case <-shutdown:
			return
		}
	}
}

func (ob *Outbound) tick() ([]byte, error) {
	if ob.opts.Role == RoleServer {
		return ob.proto.ServerEncode(ob.sock)
	}
	return ob.proto.ClientDecode(ob.sock)
}

// Close releases the underlying transport. Safe to call more than once,
// and before Dial has run.
func (ob *Outbound) Close() error {
	if ob.transport == nil {
		return nil
	}
	return ob.transport.Close()
}
