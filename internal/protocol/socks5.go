package protocol

import (
	"github.com/corridorproxy/corridor/internal/address"
	cerrors "github.com/corridorproxy/corridor/internal/errors"
)

const (
	socksVersion5  = 0x05
	socksMethodNo  = 0x00
	socksCmdBind   = 0x02
	socksReplyOK   = 0x00
	socksAtypV4    = 0x01
	socksRsvByte   = 0x00
)

// Socks5 implements RFC 1928's no-auth, CONNECT-only subset, plus the UDP
// ASSOCIATE payload framing.
type Socks5 struct {
	unsupported
	bindAddr *address.Addr
}

// NewSocks5 builds a SOCKS5 sniffer. bindAddr, when set, is echoed back in
// the CONNECT reply's BND.ADDR; otherwise a zero IPv4 is used.
func NewSocks5(bindAddr *address.Addr) *Socks5 {
	return &Socks5{bindAddr: bindAddr}
}

// Name implements Protocol.
func (s *Socks5) Name() Kind { return KindSocks }

// ResolveDestAddr implements Protocol.
func (s *Socks5) ResolveDestAddr(sock Socket) (ResolvedResult, error) {
	if sock.IsDatagram() {
		return s.resolveUDP(sock)
	}
	return s.resolveTCP(sock)
}

func (s *Socks5) resolveUDP(sock Socket) (ResolvedResult, error) {
	// +----+------+------+----------+----------+----------+
	// |RSV | FRAG | ATYP | DST.ADDR | DST.PORT |   DATA   |
	// +----+------+------+----------+----------+----------+
	// | 2  |  1   |  1   | Variable |    2     | Variable |
	// +----+------+------+----------+----------+----------+
	packet, err := sock.ReadSome()
	if err != nil {
		return ResolvedResult{}, err
	}
	if len(packet) < 3 {
		return ResolvedResult{}, cerrors.NewProbeFailed("socks5", errTruncatedUDPHeader)
	}
	addr, pending, err := address.DecodeBuffer(packet[3:])
	if err != nil {
		return ResolvedResult{}, cerrors.NewProbeFailed("socks5", err)
	}
	return ResolvedResult{Destination: addr, Kind: KindSocks, PendingBuf: pending}, nil
}

func (s *Socks5) resolveTCP(sock Socket) (ResolvedResult, error) {
	// Socks5 Identifier Message: VER(1) NMETHODS(1) METHODS(1..255)
	greeting, err := sock.ReadExact(2)
	if err != nil {
		return ResolvedResult{}, err
	}
	ver, nMethods := greeting[0], int(greeting[1])
	if ver != socksVersion5 || nMethods < 1 {
		return ResolvedResult{}, cerrors.NewProbeFailed("socks5", errBadGreeting)
	}

	methods, err := sock.ReadExact(nMethods)
	if err != nil {
		return ResolvedResult{}, err
	}
	if !containsByte(methods, socksMethodNo) {
		return ResolvedResult{}, cerrors.NewProbeFailed("socks5", errNoAcceptableMethod)
	}

	if err := sock.Send([]byte{socksVersion5, socksMethodNo}); err != nil {
		return ResolvedResult{}, err
	}

	// Socks5 Request Message: VER(1) CMD(1) RSV(1) ATYP DST.ADDR DST.PORT
	req, err := sock.ReadExact(3)
	if err != nil {
		return ResolvedResult{}, err
	}
	if req[0] != socksVersion5 {
		return ResolvedResult{}, cerrors.NewProbeFailed("socks5", errBadGreeting)
	}
	if req[1] == socksCmdBind {
		return ResolvedResult{}, cerrors.NewProbeFailed("socks5", errUnsupportedCommand)
	}
	if req[2] != socksRsvByte {
		return ResolvedResult{}, cerrors.NewProbeFailed("socks5", errBadRsv)
	}

	addr, err := address.Decode(sock)
	if err != nil {
		return ResolvedResult{}, cerrors.NewProbeFailed("socks5", err)
	}

	replyBuf := []byte{socksVersion5, socksReplyOK, socksRsvByte}
	if s.bindAddr != nil {
		encoded, err := address.Encode(*s.bindAddr)
		if err != nil {
			return ResolvedResult{}, err
		}
		replyBuf = append(replyBuf, encoded...)
	} else {
		replyBuf = append(replyBuf, socksAtypV4, 0, 0, 0, 0, 0, 0)
	}
	if err := sock.Send(replyBuf); err != nil {
		return ResolvedResult{}, err
	}

	return ResolvedResult{Destination: addr, Kind: KindSocks}, nil
}

func containsByte(buf []byte, b byte) bool {
	for _, v := range buf {
		if v == b {
			return true
		}
	}
	return false
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const (
	errBadGreeting        = sentinelError("socks5: bad greeting")
	errNoAcceptableMethod = sentinelError("socks5: no acceptable auth method")
	errUnsupportedCommand = sentinelError("socks5: unsupported command")
	errBadRsv             = sentinelError("socks5: RSV must be zero")
	errTruncatedUDPHeader = sentinelError("socks5: truncated UDP request header")
)
