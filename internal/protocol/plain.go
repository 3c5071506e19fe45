package protocol

import (
	"github.com/corridorproxy/corridor/internal/address"
)

// Plain is the unencrypted tunnel framing: the first client->server frame
// is prefixed with the address codec of the resolved destination;
// subsequent frames are raw payload. No integrity or confidentiality.
type Plain struct {
	unsupported
	headerSent bool
	resolved   ResolvedResult
}

// NewPlain builds a Plain tunnel codec.
func NewPlain() *Plain { return &Plain{} }

// Name implements Protocol.
func (p *Plain) Name() Kind { return KindPlain }

// ResolveDestAddr implements Protocol. Used only on the server side, where
// the first frame carries the encoded destination address.
func (p *Plain) ResolveDestAddr(sock Socket) (ResolvedResult, error) {
	addr, err := address.Decode(sock)
	if err != nil {
		return ResolvedResult{}, err
	}
	p.resolved = ResolvedResult{Destination: addr, Kind: KindPlain}
	return p.resolved, nil
}

// ClientEncode implements Protocol.
func (p *Plain) ClientEncode(sock Socket) ([]byte, error) {
	var frame []byte
	if !p.headerSent {
		encoded, err := address.Encode(p.resolved.Destination)
		if err != nil {
			return nil, err
		}
		frame = append(frame, encoded...)
		p.headerSent = true
	}

	buf, err := sock.ReadSome()
	if err != nil {
		return nil, err
	}
	frame = append(frame, buf...)
	return frame, nil
}

// SetResolvedResult lets Inbound attach the destination this Plain codec
// should prefix, when acting as a client encoder.
func (p *Plain) SetResolvedResult(r ResolvedResult) { p.resolved = r }

// ServerEncode implements Protocol.
func (p *Plain) ServerEncode(sock Socket) ([]byte, error) { return sock.ReadSome() }

// ClientDecode implements Protocol.
func (p *Plain) ClientDecode(sock Socket) ([]byte, error) { return sock.ReadSome() }

// ServerDecode implements Protocol.
func (p *Plain) ServerDecode(sock Socket) ([]byte, error) { return sock.ReadSome() }
