// Package address implements the SOCKS-style ATYP-prefixed (host, port)
// wire codec shared by every protocol in internal/protocol and by the ERP
// framing in internal/erp.
package address

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"unicode/utf8"

	cerrors "github.com/corridorproxy/corridor/internal/errors"
)

// Type is the ATYP byte identifying which host form follows.
type Type byte

// ATYP values, identical to the SOCKS5 address type byte.
const (
	TypeV4   Type = 1
	TypeV6   Type = 4
	TypeName Type = 3
)

// MaxNameLen is the maximum length of a DNS-name host, enforced by the
// single length-prefix byte.
const MaxNameLen = 255

// Addr is a tagged (host, port) pair. Exactly one of IP or Name is set.
type Addr struct {
	Type Type
	IP   net.IP // 4 or 16 bytes, set when Type is TypeV4/TypeV6
	Name string // non-empty UTF-8, set when Type is TypeName
	Port uint16
}

// NewIP builds an Addr from a net.IP and port, choosing v4 or v6 by the
// IP's 4-in-16 form.
func NewIP(ip net.IP, port uint16) Addr {
	if v4 := ip.To4(); v4 != nil {
		return Addr{Type: TypeV4, IP: v4, Port: port}
	}
	return Addr{Type: TypeV6, IP: ip.To16(), Port: port}
}

// NewName builds an Addr carrying a DNS name host.
func NewName(name string, port uint16) Addr {
	return Addr{Type: TypeName, Name: name, Port: port}
}

// Host renders the host portion as a string (IP literal or name, no port).
func (a Addr) Host() string {
	if a.Type == TypeName {
		return a.Name
	}
	return a.IP.String()
}

// String renders "host:port", bracketing IPv6 literals.
func (a Addr) String() string {
	return net.JoinHostPort(a.Host(), fmt.Sprintf("%d", a.Port))
}

// Encode writes the wire form: 1-byte ATYP, address bytes, 2-byte big-endian port.
func Encode(a Addr) ([]byte, error) {
	switch a.Type {
	case TypeV4:
		ip := a.IP.To4()
		if ip == nil {
			return nil, cerrors.NewProtocolError("encode", "TypeV4 address is not 4 bytes", nil)
		}
		buf := make([]byte, 1+4+2)
		buf[0] = byte(TypeV4)
		copy(buf[1:5], ip)
		binary.BigEndian.PutUint16(buf[5:7], a.Port)
		return buf, nil
	case TypeV6:
		ip := a.IP.To16()
		if ip == nil {
			return nil, cerrors.NewProtocolError("encode", "TypeV6 address is not 16 bytes", nil)
		}
		buf := make([]byte, 1+16+2)
		buf[0] = byte(TypeV6)
		copy(buf[1:17], ip)
		binary.BigEndian.PutUint16(buf[17:19], a.Port)
		return buf, nil
	case TypeName:
		if a.Name == "" {
			return nil, cerrors.NewProtocolError("encode", "name host must be non-empty", nil)
		}
		if len(a.Name) > MaxNameLen {
			return nil, cerrors.NewProtocolError("encode", "name host exceeds 255 bytes", nil)
		}
		buf := make([]byte, 1+1+len(a.Name)+2)
		buf[0] = byte(TypeName)
		buf[1] = byte(len(a.Name))
		copy(buf[2:2+len(a.Name)], a.Name)
		binary.BigEndian.PutUint16(buf[2+len(a.Name):], a.Port)
		return buf, nil
	default:
		return nil, cerrors.NewProtocolError("encode", fmt.Sprintf("bad atyp %d", a.Type), nil)
	}
}

// DecodeBuffer decodes an Addr from an in-memory buffer and returns the
// trailing, unconsumed bytes as pending.
func DecodeBuffer(buf []byte) (addr Addr, pending []byte, err error) {
	if len(buf) < 1 {
		return Addr{}, nil, cerrors.NewProtocolError("decode", "truncated: missing atyp", nil)
	}
	atyp := Type(buf[0])
	rest := buf[1:]

	switch atyp {
	case TypeV4:
		if len(rest) < 4+2 {
			return Addr{}, nil, cerrors.NewProtocolError("decode", "truncated: short v4 address", nil)
		}
		ip := net.IP(append([]byte(nil), rest[:4]...))
		port := binary.BigEndian.Uint16(rest[4:6])
		return Addr{Type: TypeV4, IP: ip, Port: port}, rest[6:], nil
	case TypeV6:
		if len(rest) < 16+2 {
			return Addr{}, nil, cerrors.NewProtocolError("decode", "truncated: short v6 address", nil)
		}
		ip := net.IP(append([]byte(nil), rest[:16]...))
		port := binary.BigEndian.Uint16(rest[16:18])
		return Addr{Type: TypeV6, IP: ip, Port: port}, rest[18:], nil
	case TypeName:
		if len(rest) < 1 {
			return Addr{}, nil, cerrors.NewProtocolError("decode", "truncated: missing name length", nil)
		}
		n := int(rest[0])
		rest = rest[1:]
		if len(rest) < n+2 {
			return Addr{}, nil, cerrors.NewProtocolError("decode", "truncated: short name", nil)
		}
		nameBytes := rest[:n]
		if !utf8.Valid(nameBytes) {
			return Addr{}, nil, cerrors.NewProtocolError("decode", "name is not valid utf-8", nil)
		}
		if n == 0 {
			return Addr{}, nil, cerrors.NewProtocolError("decode", "name must be non-empty", nil)
		}
		port := binary.BigEndian.Uint16(rest[n : n+2])
		return Addr{Type: TypeName, Name: string(nameBytes), Port: port}, rest[n+2:], nil
	default:
		return Addr{}, nil, cerrors.NewProtocolError("decode", fmt.Sprintf("bad atyp %d", atyp), nil)
	}
}

// reader is the minimal subset of breader.Reader that Decode needs, kept
// narrow here to avoid an import cycle with internal/breader.
type reader interface {
	ReadExact(n int) ([]byte, error)
}

// Decode reads an Addr directly from a Reader, one field at a time.
func Decode(r reader) (Addr, error) {
	atypBuf, err := r.ReadExact(1)
	if err != nil {
		return Addr{}, err
	}
	atyp := Type(atypBuf[0])

	switch atyp {
	case TypeV4:
		buf, err := r.ReadExact(4 + 2)
		if err != nil {
			return Addr{}, err
		}
		ip := net.IP(append([]byte(nil), buf[:4]...))
		port := binary.BigEndian.Uint16(buf[4:6])
		return Addr{Type: TypeV4, IP: ip, Port: port}, nil
	case TypeV6:
		buf, err := r.ReadExact(16 + 2)
		if err != nil {
			return Addr{}, err
		}
		ip := net.IP(append([]byte(nil), buf[:16]...))
		port := binary.BigEndian.Uint16(buf[16:18])
		return Addr{Type: TypeV6, IP: ip, Port: port}, nil
	case TypeName:
		lenBuf, err := r.ReadExact(1)
		if err != nil {
			return Addr{}, err
		}
		n := int(lenBuf[0])
		if n == 0 {
			return Addr{}, cerrors.NewProtocolError("decode", "name must be non-empty", nil)
		}
		buf, err := r.ReadExact(n + 2)
		if err != nil {
			return Addr{}, err
		}
		nameBytes := buf[:n]
		if !utf8.Valid(nameBytes) {
			return Addr{}, cerrors.NewProtocolError("decode", "name is not valid utf-8", nil)
		}
		port := binary.BigEndian.Uint16(buf[n : n+2])
		return Addr{Type: TypeName, Name: string(nameBytes), Port: port}, nil
	default:
		return Addr{}, cerrors.NewProtocolError("decode", fmt.Sprintf("bad atyp %d", atyp), nil)
	}
}

// FromHostPort parses a "host:port" or bare "host" string into an Addr,
// applying defaultPort when no port is present. IP literals become
// TypeV4/TypeV6; anything else becomes a TypeName host.
func FromHostPort(hostport string, defaultPort uint16) (Addr, error) {
	host := hostport
	port := defaultPort

	if h, p, err := net.SplitHostPort(hostport); err == nil {
		host = h
		parsed, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Addr{}, cerrors.NewProtocolError("decode", "bad port in host:port", err)
		}
		port = uint16(parsed)
	}

	if host == "" {
		return Addr{}, cerrors.NewProtocolError("decode", "empty host", nil)
	}

	if ip := net.ParseIP(host); ip != nil {
		return NewIP(ip, port), nil
	}
	return NewName(host, port), nil
}

// EncodedLen returns the wire length Encode(a) would produce, without
// allocating: 1 (atyp) + addr bytes + 2 (port).
func EncodedLen(a Addr) int {
	switch a.Type {
	case TypeV4:
		return 1 + 4 + 2
	case TypeV6:
		return 1 + 16 + 2
	case TypeName:
		return 1 + 1 + len(a.Name) + 2
	default:
		return 0
	}
}
