// Package service implements the four listener variants: Tcp, Udp, Tls,
// Quic. Each feeds accepted sockets into a single bounded channel consumed
// by a spawner that creates one Connection per socket.
package service

import (
	"net/netip"
)

// RawConn is the minimal transport abstraction a listener produces: enough
// for internal/breader to pull bytes from (ReadSome) and for a Protocol to
// answer in-band handshakes (Send). internal/conn wraps one of these in a
// breader.Reader to get a full protocol.Socket.
type RawConn interface {
	// ReadSome reads into p and returns the number of bytes read. A stream
	// implementation performs a single partial read; a datagram
	// implementation returns exactly one packet's payload, never merging
	// packets.
	ReadSome(p []byte) (int, error)
	// Send writes buf in full.
	Send(buf []byte) error
	// Close releases the underlying resource. Safe to call more than once.
	Close() error
	// RemoteAddr renders the peer address for logging.
	RemoteAddr() string
}

// DatagramConn marks a RawConn produced by a datagram-oriented listener, so
// internal/breader can enforce the short-datagram ReadExact rule.
type DatagramConn interface {
	RawConn
	Datagram()
}

// OriginalDstProvider is implemented by accepted TCP sockets on Linux,
// letting Inbound recover the pre-NAT destination of an iptables REDIRECT
// connection when every protocol probe fails.
type OriginalDstProvider interface {
	OriginalDst() (netip.AddrPort, bool)
}

// Kind identifies which listener variant produced a RawConn, informing
// Inbound whether to treat the socket as a TCP stream (subject to the
// REDIRECT fallback) or something else.
type Kind string

const (
	KindTCP  Kind = "tcp"
	KindUDP  Kind = "udp"
	KindTLS  Kind = "tls"
	KindQUIC Kind = "quic"
)

// Accepted is one socket handed from a listener to the spawner, tagged
// with the listener kind that produced it.
type Accepted struct {
	Conn RawConn
	Kind Kind
}

// Listener is implemented by each of the four transport variants.
type Listener interface {
	// Start accepts sockets on bind and pushes them to out until either out
	// is abandoned by the consumer closing shutdown, or accept fails fatally.
	// It returns once the listener has stopped.
	Start(bind string, out chan<- Accepted, shutdown <-chan struct{}) error
}
