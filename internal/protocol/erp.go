package protocol

import (
	"github.com/corridorproxy/corridor/internal/address"
	"github.com/corridorproxy/corridor/internal/erp"
)

// Erp adapts internal/erp's AEAD framing to the Protocol contract.
type Erp struct {
	unsupported
	codec        *erp.Codec
	resolved     ResolvedResult
	addrAttached bool
}

// NewErpClient builds a client-role Erp codec: it generates its own salt
// and derives the key immediately.
func NewErpClient(key []byte) (*Erp, error) {
	codec, err := erp.NewClient(key)
	if err != nil {
		return nil, err
	}
	return &Erp{codec: codec}, nil
}

// NewErpServer builds a server-role Erp codec: the salt is parsed off the
// wire and the key derived lazily on first decode.
func NewErpServer(key []byte) *Erp {
	return &Erp{codec: erp.NewServer(key)}
}

// Name implements Protocol.
func (e *Erp) Name() Kind { return KindErp }

// SetResolvedResult lets Inbound attach the destination this codec should
// prefix onto the first client_encode frame.
func (e *Erp) SetResolvedResult(r ResolvedResult) { e.resolved = r }

// ResolveDestAddr implements Protocol. Used on the server side: reads the
// salt header (if not yet read), decodes the first frame, and parses the
// leading address codec out of its plaintext.
func (e *Erp) ResolveDestAddr(sock Socket) (ResolvedResult, error) {
	if !e.codec.HasKey() {
		if err := e.codec.ReadSalt(sock); err != nil {
			return ResolvedResult{}, err
		}
	}

	chunk, err := e.codec.DecodeFrame(sock)
	if err != nil {
		return ResolvedResult{}, err
	}

	addr, pending, err := address.DecodeBuffer(chunk)
	if err != nil {
		return ResolvedResult{}, err
	}

	e.resolved = ResolvedResult{Destination: addr, Kind: KindErp, PendingBuf: pending}
	return e.resolved, nil
}

// ClientEncode implements Protocol: the output starts with the session
// salt header, and the first frame's plaintext starts with the resolved
// destination's address codec.
func (e *Erp) ClientEncode(sock Socket) ([]byte, error) {
	buf, err := sock.ReadSome()
	if err != nil {
		return nil, err
	}

	var plaintext []byte
	if !e.addrAttached {
		encoded, err := address.Encode(e.resolved.Destination)
		if err != nil {
			return nil, err
		}
		plaintext = append(plaintext, encoded...)
		e.addrAttached = true
	}
	plaintext = append(plaintext, buf...)

	return e.codec.EncodeWithHeader(plaintext)
}

// ServerEncode implements Protocol.
func (e *Erp) ServerEncode(sock Socket) ([]byte, error) {
	buf, err := sock.ReadSome()
	if err != nil {
		return nil, err
	}
	return e.codec.Encode(buf)
}

// ClientDecode implements Protocol.
func (e *Erp) ClientDecode(sock Socket) ([]byte, error) { return e.codec.DecodeFrame(sock) }

// ServerDecode implements Protocol.
func (e *Erp) ServerDecode(sock Socket) ([]byte, error) { return e.codec.DecodeFrame(sock) }
