package conn

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/corridorproxy/corridor/internal/address"
	"github.com/corridorproxy/corridor/internal/constants"
	cerrors "github.com/corridorproxy/corridor/internal/errors"
	"github.com/corridorproxy/corridor/internal/protocol"
)

// deadliner is implemented by stream transports (TCP/TLS/QUIC) so probes
// can be bounded by a real socket deadline in addition to the context.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// InboundParams carries the per-connection pieces the spawner assembles
// from a service.Accepted before handing it to a new Inbound.
type InboundParams struct {
	Transport   Transport
	IsDatagram  bool
	IsTCP       bool // eligible for the Linux SO_ORIGINAL_DST fallback
	OriginalDst func() (netip.AddrPort, bool)
}

// Inbound owns the accepted socket, picks a Protocol by probing, and runs
// the inbound-to-outbound pump.
type Inbound struct {
	opts   *Options
	params InboundParams
	sock   *wireSocket

	proto    protocol.Protocol
	resolved protocol.ResolvedResult
}

// NewInbound wraps an accepted socket with a Buffered Reader and prepares
// it for probing.
func NewInbound(opts *Options, params InboundParams) *Inbound {
	return &Inbound{
		opts:   opts,
		params: params,
		sock:   newSocket(params.Transport, params.IsDatagram),
	}
}

// Resolve determines the destination by probing the configured candidate
// protocols, bounded by constants.DestResolveTimeout.
func (ib *Inbound) Resolve(ctx context.Context) (protocol.ResolvedResult, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DestResolveTimeout)
	defer cancel()

	if ib.opts.PinDestAddr != nil {
		ib.proto = protocol.NewDirect()
		ib.resolved = protocol.ResolvedResult{Destination: *ib.opts.PinDestAddr, Kind: protocol.KindDirect}
		return ib.resolved, nil
	}

	if ib.opts.Role == RoleServer {
		return ib.resolveServer(ctx)
	}
	return ib.resolveClient(ctx)
}

func (ib *Inbound) resolveClient(ctx context.Context) (protocol.ResolvedResult, error) {
	var candidates []protocol.Protocol
	if ib.params.IsDatagram {
		candidates = []protocol.Protocol{
			protocol.NewSocks5(ib.opts.BindAddr),
			protocol.NewDNS(ib.opts.DNSSniffTarget),
		}
	} else {
		candidates = []protocol.Protocol{
			protocol.NewSocks5(ib.opts.BindAddr),
			protocol.NewHTTP(ib.opts.BasicAuth),
			protocol.NewHTTPS(),
		}
	}

	var lastErr error
	for _, p := range candidates {
		res, err := ib.tryProbe(ctx, p)
		if err == nil {
			ib.sock.DisableRestore()
			ib.proto = p
			ib.resolved = res
			return res, nil
		}
		lastErr = err
		ib.sock.Restore()
	}

	if ib.params.IsTCP && ib.params.OriginalDst != nil {
		if addrPort, ok := ib.params.OriginalDst(); ok {
			ib.proto = protocol.NewDirect()
			ib.resolved = protocol.ResolvedResult{
				Destination: address.NewIP(net.IP(addrPort.Addr().AsSlice()), addrPort.Port()),
				Kind:        protocol.KindDirect,
			}
			return ib.resolved, nil
		}
	}

	if lastErr == nil {
		lastErr = cerrors.NewResolveTimeout(ib.params.Transport.RemoteAddr())
	}
	return protocol.ResolvedResult{}, lastErr
}

// resolveServer decodes the single configured tunnel cipher, then applies
// the conservative DNS-override decision recorded in DESIGN.md: only when
// the inbound socket itself is UDP.
func (ib *Inbound) resolveServer(ctx context.Context) (protocol.ResolvedResult, error) {
	p := ib.buildServerProtocol()
	res, err := ib.tryProbe(ctx, p)
	if err != nil {
		return protocol.ResolvedResult{}, err
	}
	ib.sock.DisableRestore()
	ib.proto = p

	if ib.params.IsDatagram && len(res.PendingBuf) > 0 && protocol.IsDNSQuery(res.PendingBuf) {
		res.Destination = ib.opts.DNSSniffTarget
	}
	ib.resolved = res
	return res, nil
}

func (ib *Inbound) buildServerProtocol() protocol.Protocol {
	if ib.opts.Encryption == EncryptionErp {
		return protocol.NewErpServer(ib.opts.Key)
	}
	return protocol.NewPlain()
}

// tryProbe runs one candidate's ResolveDestAddr bounded by ctx, preferring
// a real socket read deadline when the transport supports one.
func (ib *Inbound) tryProbe(ctx context.Context, p protocol.Protocol) (protocol.ResolvedResult, error) {
	if dl, ok := ib.params.Transport.(deadliner); ok {
		if deadline, set := ctx.Deadline(); set {
			_ = dl.SetReadDeadline(deadline)
			defer dl.SetReadDeadline(time.Time{})
		}
	}

	type outcome struct {
		res protocol.ResolvedResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := p.ResolveDestAddr(ib.sock)
		ch <- outcome{res, err}
	}()

	select {
	case o := <-ch:
		return o.res, o.err
	case <-ctx.Done():
		return protocol.ResolvedResult{}, cerrors.NewResolveTimeout(ib.params.Transport.RemoteAddr())
	}
}

// Resolved returns the last successful probe result.
func (ib *Inbound) Resolved() protocol.ResolvedResult { return ib.resolved }

// Proto returns the protocol currently bound to this leg.
func (ib *Inbound) Proto() protocol.Protocol { return ib.proto }

// SwapProtocol replaces the sniffing protocol used during Resolve with the
// transport-framing protocol (Direct, Plain, or Erp) that drives the
// ensuing pump: each call returns a logically complete frame, and sniffers
// only ever implement ResolveDestAddr.
func (ib *Inbound) SwapProtocol(p protocol.Protocol) { ib.proto = p }

// SeedPending appends pendingBuf to the socket's cache (after anything
// already cached, ahead of fresh socket bytes) so the next read through the
// (possibly just-swapped) protocol returns it before new socket data. Valid only when pendingBuf shares the same byte domain as the
// live socket — true for every sniffer except the server-role Erp probe,
// whose pending bytes are already-decrypted plaintext (see Connection).
func (ib *Inbound) SeedPending(pendingBuf []byte) {
	if len(pendingBuf) > 0 {
		ib.sock.Cache(pendingBuf)
	}
}

// Write sends buf to the local program, bypassing the codec: used for
// bytes already decoded back to plaintext by the outbound leg's pump.
func (ib *Inbound) Write(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	return ib.sock.Send(buf)
}

// Pump runs the per-tick inbound loop: client_encode (client role) or
// server_decode (server role), emitting events until error or shutdown.
func (ib *Inbound) Pump(ctx context.Context, events chan<- event, shutdown <-chan struct{}) {
	for {
		if dl, ok := ib.params.Transport.(deadliner); ok && ib.opts.IdleTimeout > 0 {
			_ = dl.SetReadDeadline(time.Now().Add(ib.opts.IdleTimeout))
		}

		buf, err := ib.tick()
		if err != nil {
			select {
			case events <- event{kind: evInboundError, err: err}:
			case <-shutdown:
			}
			return
		}

		kind := evClientEncodeDone
		if ib.opts.Role == RoleServer {
			kind = evServerDecodeDone
		}

		select {
		case events <- event{kind: kind, buf: buf}:
		case <-shutdown:
			return
		}
	}
}

func (ib *Inbound) tick() ([]byte, error) {
	if ib.opts.Role == RoleServer {
		return ib.proto.ServerDecode(ib.sock)
	}
	return ib.proto.ClientEncode(ib.sock)
}

// Close releases the underlying transport. Safe to call more than once.
func (ib *Inbound) Close() error {
	return ib.params.Transport.Close()
}
