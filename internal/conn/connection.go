package conn

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/corridorproxy/corridor/internal/constants"
	cerrors "github.com/corridorproxy/corridor/internal/errors"
	"github.com/corridorproxy/corridor/internal/protocol"
)

// State is one stage of a Connection's one-way lifecycle:
// New -> Resolving -> Connecting -> Relaying -> Closed. Errors can jump to
// Closed from any state.
type State int

const (
	StateNew State = iota
	StateResolving
	StateConnecting
	StateRelaying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateConnecting:
		return "connecting"
	case StateRelaying:
		return "relaying"
	case StateClosed:
		return "closed"
	default:
		return "new"
	}
}

var nextConnID atomic.Int64

// Connection binds one Inbound and one Outbound and arbitrates events from
// both pumps on a bounded channel.
type Connection struct {
	id       int64
	opts     *Options
	inbound  *Inbound
	outbound *Outbound

	mu    sync.Mutex
	state State

	events chan event
}

// New builds a Connection around an accepted socket described by params.
// The id is assigned from a process-wide counter for correlating log lines.
func New(opts *Options, params InboundParams) *Connection {
	return &Connection{
		id:       nextConnID.Add(1),
		opts:     opts,
		inbound:  NewInbound(opts, params),
		outbound: NewOutbound(opts),
		state:    StateNew,
		events:   make(chan event, constants.ConnectionEventChannelCap),
	}
}

// ID returns the connection's correlation identifier.
func (c *Connection) ID() int64 { return c.id }

// State returns the connection's current lifecycle stage.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Handle runs the full connection lifecycle to completion: probe, dial,
// pump, arbitrate, close. It returns once the connection has terminated,
// whether by error, peer close, or shutdown signal.
func (c *Connection) Handle(ctx context.Context, shutdown <-chan struct{}) {
	logger := c.logger()

	c.setState(StateResolving)
	resolved, err := c.inbound.Resolve(ctx)
	if err != nil {
		errEvent(logger, err).Msg("destination resolve failed")
		c.opts.Monitor.Report(c.id, string(c.opts.Role), "resolve_failed", "")
		c.inbound.Close()
		c.setState(StateClosed)
		return
	}
	c.opts.Monitor.Report(c.id, string(c.opts.Role), "resolved", resolved.Destination.String())

	tunnelProto, useTunnel, err := c.setupTunnelProtocol(resolved)
	if err != nil {
		logger.Info().Err(err).Str("protocol", string(resolved.Kind)).Msg("tunnel codec setup failed")
		c.inbound.Close()
		c.setState(StateClosed)
		return
	}

	if c.opts.Role == RoleClient {
		c.inbound.SwapProtocol(tunnelProto)
		c.inbound.SeedPending(resolved.PendingBuf)
	}

	c.setState(StateConnecting)
	if err := c.outbound.Dial(ctx, resolved, tunnelProto, useTunnel, c.inbound.params.IsDatagram); err != nil {
		logger.Info().Err(err).Str("protocol", string(resolved.Kind)).Str("dest", resolved.Destination.String()).Msg("outbound dial failed")
		c.inbound.Close()
		c.setState(StateClosed)
		return
	}

	// The server-role leftover bytes from the first decoded Erp/Plain frame
	// are already plaintext: write them straight to the destination rather
	// than threading them back through another decode tick (see
	// Inbound.SeedPending's doc comment).
	if c.opts.Role == RoleServer && len(resolved.PendingBuf) > 0 {
		if err := c.outbound.Write(resolved.PendingBuf); err != nil {
			logger.Info().Err(err).Msg("priming outbound write failed")
			c.closeLegs()
			c.setState(StateClosed)
			return
		}
	}

	c.setState(StateRelaying)
	c.relay(ctx, logger, shutdown)
	c.opts.Monitor.Report(c.id, string(c.opts.Role), "closed", resolved.Destination.String())
	c.setState(StateClosed)
}

// setupTunnelProtocol decides which Protocol instance drives the tunnel
// framing direction for both legs, and whether the client leg dials the
// tunnel peer at all.
//
// Server role reuses the Protocol instance Inbound already bound during
// Resolve (its ServerDecode call derived the session key); Outbound must
// share that same instance so ServerEncode advances the same codec.
func (c *Connection) setupTunnelProtocol(resolved protocol.ResolvedResult) (protocol.Protocol, bool, error) {
	if c.opts.Role == RoleServer {
		return c.inbound.Proto(), false, nil
	}

	if !ViaTunnel(c.opts, resolved.Destination, c.inbound.params.IsDatagram) {
		return protocol.NewDirect(), false, nil
	}

	switch c.opts.Encryption {
	case EncryptionErp:
		p, err := protocol.NewErpClient(c.opts.Key)
		if err != nil {
			return nil, false, err
		}
		p.SetResolvedResult(resolved)
		return p, true, nil
	default:
		p := protocol.NewPlain()
		p.SetResolvedResult(resolved)
		return p, true, nil
	}
}

// relay spawns both pumps and drains events until a terminal error, a
// shutdown signal, or the peer closing either leg.
func (c *Connection) relay(ctx context.Context, logger zerolog.Logger, shutdown <-chan struct{}) {
	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.inbound.Pump(pumpCtx, c.events, shutdown) }()
	go func() { defer wg.Done(); c.outbound.Pump(pumpCtx, c.events, shutdown) }()

	c.drain(logger, shutdown)

	cancel()
	c.closeLegs()
	wg.Wait()
}

// drain consumes events in FIFO order until a fatal error or shutdown.
// There is no ordering guarantee between the two directions.
func (c *Connection) drain(logger zerolog.Logger, shutdown <-chan struct{}) {
	for {
		select {
		case ev := <-c.events:
			switch ev.kind {
			case evClientEncodeDone, evServerDecodeDone:
				if err := c.outbound.Write(ev.buf); err != nil {
					logger.Info().Err(err).Msg("outbound write failed")
					return
				}
			case evServerEncodeDone, evClientDecodeDone:
				if err := c.inbound.Write(ev.buf); err != nil {
					logger.Info().Err(err).Msg("inbound write failed")
					return
				}
			case evInboundError:
				errEvent(logger, ev.err).Str("protocol", string(c.inbound.Resolved().Kind)).Msg("inbound error")
				return
			case evOutboundError:
				errEvent(logger, ev.err).Str("protocol", string(c.inbound.Resolved().Kind)).Msg("outbound error")
				return
			}
		case <-shutdown:
			return
		}
	}
}

// errEvent starts the log line for a connection-ending error: AEAD
// failures are logged at trace only, every other error at info.
func errEvent(logger zerolog.Logger, err error) *zerolog.Event {
	if cerrors.Type(err) == cerrors.ErrorTypeAEAD {
		return logger.Trace().Err(err)
	}
	return logger.Info().Err(err)
}

// closeLegs shuts both sockets down. Safe to call more than once; Inbound
// and Outbound's Close are themselves idempotent.
func (c *Connection) closeLegs() {
	c.inbound.Close()
	c.outbound.Close()
}

func (c *Connection) logger() zerolog.Logger {
	return c.opts.Logger.With().
		Int64("conn_id", c.id).
		Str("role", string(c.opts.Role)).
		Str("peer", c.inbound.params.Transport.RemoteAddr()).
		Logger()
}
