// Package protocol implements the pluggable protocol codecs of the proxy: a
// uniform contract (resolve/encode/decode) shared by SOCKS5, HTTP, HTTPS
// SNI sniffing, DNS sniffing, Plain tunnel framing, Direct pass-through, and
// the ERP AEAD tunnel codec.
package protocol

import (
	"github.com/corridorproxy/corridor/internal/address"
	cerrors "github.com/corridorproxy/corridor/internal/errors"
)

// Kind identifies which concrete Protocol resolved a connection.
type Kind string

// Protocol kinds, surfaced on ResolvedResult.Kind.
const (
	KindDirect    Kind = "direct"
	KindSocks     Kind = "socks"
	KindHTTP      Kind = "http"
	KindHTTPProxy Kind = "http_proxy"
	KindHTTPS     Kind = "https"
	KindDNS       Kind = "dns"
	KindPlain     Kind = "plain"
	KindErp       Kind = "erp"
)

// ResolvedResult is what a successful inbound probe produces.
type ResolvedResult struct {
	Destination address.Addr
	Kind        Kind
	PendingBuf  []byte
}

// Reader is the buffered, rewindable read side a Protocol operates over.
// internal/breader.Reader satisfies this.
type Reader interface {
	ReadSome() ([]byte, error)
	ReadExact(n int) ([]byte, error)
	Cache(buf []byte)
	Restore()
	DisableRestore()
}

// Writer is the write side a Protocol needs to answer in-band handshakes
// (SOCKS5 replies, HTTP CONNECT acknowledgements).
type Writer interface {
	Send(buf []byte) error
}

// Socket bundles Reader and Writer, and reports whether the underlying
// transport is datagram-oriented — protocols like SOCKS5 and DNS sniffing
// behave differently on UDP.
type Socket interface {
	Reader
	Writer
	IsDatagram() bool
}

// Protocol is a polymorphic codec. A given concrete protocol implements
// only the subset of methods it needs; the rest return ErrUnsupported and
// are never called by the pipeline.
type Protocol interface {
	Name() Kind
	ResolveDestAddr(s Socket) (ResolvedResult, error)
	ClientEncode(s Socket) ([]byte, error)
	ServerEncode(s Socket) ([]byte, error)
	ClientDecode(s Socket) ([]byte, error)
	ServerDecode(s Socket) ([]byte, error)
}

// ErrUnsupported is returned by the methods a concrete Protocol does not
// implement.
var ErrUnsupported = cerrors.NewProtocolError("unsupported", "operation not supported by this protocol", nil)

// unsupported is embedded by every concrete Protocol to provide default,
// contract-unreachable implementations for the methods it doesn't use.
type unsupported struct{}

func (unsupported) ResolveDestAddr(Socket) (ResolvedResult, error) { return ResolvedResult{}, ErrUnsupported }
func (unsupported) ClientEncode(Socket) ([]byte, error)            { return nil, ErrUnsupported }
func (unsupported) ServerEncode(Socket) ([]byte, error)            { return nil, ErrUnsupported }
func (unsupported) ClientDecode(Socket) ([]byte, error)            { return nil, ErrUnsupported }
func (unsupported) ServerDecode(Socket) ([]byte, error)            { return nil, ErrUnsupported }
