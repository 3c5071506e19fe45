// Package conn implements the per-connection pipeline: Inbound sniffs a
// protocol and resolves a destination, Outbound dials it
// (directly or via the encrypted tunnel), and Connection arbitrates events
// from both pumps over a bounded channel.
package conn

import (
	"github.com/corridorproxy/corridor/internal/breader"
)

// Transport is the raw socket abstraction Inbound/Outbound operate over.
// internal/service's listener outputs satisfy this by construction.
type Transport interface {
	ReadSome(p []byte) (int, error)
	Send(buf []byte) error
	Close() error
	RemoteAddr() string
}

// wireSocket adapts a breader.Reader (built over a Transport) plus that
// same Transport's write side into the protocol.Socket contract.
type wireSocket struct {
	*breader.Reader
	raw      Transport
	datagram bool
}

func newSocket(raw Transport, datagram bool) *wireSocket {
	return &wireSocket{Reader: breader.New(raw), raw: raw, datagram: datagram}
}

func (s *wireSocket) Send(buf []byte) error { return s.raw.Send(buf) }

func (s *wireSocket) IsDatagram() bool { return s.datagram }
