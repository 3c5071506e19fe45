package conn

import (
	"context"
	"net/netip"

	"github.com/corridorproxy/corridor/internal/service"
)

// Spawn drains accepted sockets from in and runs one Connection per socket
// until in is closed or shutdown fires: a single bounded channel consumed
// by a spawner that creates one Connection per socket.
func Spawn(ctx context.Context, opts *Options, in <-chan service.Accepted, shutdown <-chan struct{}) {
	for {
		select {
		case accepted, ok := <-in:
			if !ok {
				return
			}
			go runOne(ctx, opts, accepted, shutdown)
		case <-shutdown:
			return
		}
	}
}

func runOne(ctx context.Context, opts *Options, accepted service.Accepted, shutdown <-chan struct{}) {
	params := InboundParams{
		Transport:  accepted.Conn,
		IsDatagram: accepted.Kind == service.KindUDP,
		IsTCP:      accepted.Kind == service.KindTCP,
	}
	if odp, ok := accepted.Conn.(service.OriginalDstProvider); ok {
		params.OriginalDst = func() (netip.AddrPort, bool) { return odp.OriginalDst() }
	}

	c := New(opts, params)
	c.Handle(ctx, shutdown)
}
