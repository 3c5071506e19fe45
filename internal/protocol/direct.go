package protocol

// Direct is pass-through framing used when relaying without a tunnel.
// ResolveDestAddr is not callable on it; all four codec directions are
// identity.
type Direct struct {
	unsupported
}

// NewDirect builds a Direct codec.
func NewDirect() *Direct { return &Direct{} }

// Name implements Protocol.
func (d *Direct) Name() Kind { return KindDirect }

// ClientEncode implements Protocol.
func (d *Direct) ClientEncode(sock Socket) ([]byte, error) { return sock.ReadSome() }

// ServerEncode implements Protocol.
func (d *Direct) ServerEncode(sock Socket) ([]byte, error) { return sock.ReadSome() }

// ClientDecode implements Protocol.
func (d *Direct) ClientDecode(sock Socket) ([]byte, error) { return sock.ReadSome() }

// ServerDecode implements Protocol.
func (d *Direct) ServerDecode(sock Socket) ([]byte, error) { return sock.ReadSome() }
