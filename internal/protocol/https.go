package protocol

import (
	"encoding/binary"

	"github.com/corridorproxy/corridor/internal/address"
	cerrors "github.com/corridorproxy/corridor/internal/errors"
)

// HTTPS sniffs the SNI host_name extension out of a TLS ClientHello record.
// Destination port is always 443; the record is restored afterward so the
// handshake relays unchanged.
type HTTPS struct {
	unsupported
}

// NewHTTPS builds an HTTPS SNI sniffer.
func NewHTTPS() *HTTPS { return &HTTPS{} }

// Name implements Protocol.
func (h *HTTPS) Name() Kind { return KindHTTPS }

const (
	tlsContentTypeHandshake   = 0x16
	tlsHandshakeTypeClientHi  = 0x01
	sniExtensionType          = 0x0000
	sniHostNameType           = 0x00
)

// ResolveDestAddr implements Protocol.
func (h *HTTPS) ResolveDestAddr(sock Socket) (ResolvedResult, error) {
	contentType, err := sock.ReadExact(1)
	if err != nil {
		return ResolvedResult{}, err
	}
	if contentType[0] != tlsContentTypeHandshake {
		return ResolvedResult{}, cerrors.NewProbeFailed("https", errNotHandshake)
	}

	version, err := sock.ReadExact(2)
	if err != nil {
		return ResolvedResult{}, err
	}
	if version[0] != 0x03 || version[1] != 0x01 {
		return ResolvedResult{}, cerrors.NewProbeFailed("https", errBadRecordVersion)
	}

	lenBuf, err := sock.ReadExact(2)
	if err != nil {
		return ResolvedResult{}, err
	}
	recordLen := int(binary.BigEndian.Uint16(lenBuf))
	handshake, err := sock.ReadExact(recordLen)
	if err != nil {
		return ResolvedResult{}, err
	}

	host, err := parseClientHelloSNI(handshake)
	if err != nil {
		return ResolvedResult{}, cerrors.NewProbeFailed("https", err)
	}

	// The ClientHello must reach the real destination unchanged; restore it
	// to the front of the stream so the relay pump re-reads and forwards it.
	sock.Restore()

	return ResolvedResult{Destination: address.NewName(host, 443), Kind: KindHTTPS}, nil
}

func parseClientHelloSNI(buf []byte) (string, error) {
	if len(buf) < 1 || buf[0] != tlsHandshakeTypeClientHi {
		return "", errNotClientHello
	}
	buf = buf[1:]

	// 3-byte handshake length, then ClientHello body.
	if len(buf) < 3 {
		return "", errTruncatedHello
	}
	buf = buf[3:]

	if len(buf) < 2 || buf[0] != 0x03 || buf[1] != 0x03 {
		return "", errBadHelloVersion
	}
	buf = buf[2:]

	// Random(32)
	if len(buf) < 32 {
		return "", errTruncatedHello
	}
	buf = buf[32:]

	// Session ID
	if len(buf) < 1 {
		return "", errTruncatedHello
	}
	sidLen := int(buf[0])
	buf = buf[1:]
	if len(buf) < sidLen {
		return "", errTruncatedHello
	}
	buf = buf[sidLen:]

	// Cipher Suites
	if len(buf) < 2 {
		return "", errTruncatedHello
	}
	csLen := int(binary.BigEndian.Uint16(buf))
	buf = buf[2:]
	if len(buf) < csLen {
		return "", errTruncatedHello
	}
	buf = buf[csLen:]

	// Compression Methods
	if len(buf) < 1 {
		return "", errTruncatedHello
	}
	cmLen := int(buf[0])
	buf = buf[1:]
	if len(buf) < cmLen {
		return "", errTruncatedHello
	}
	buf = buf[cmLen:]

	// Extensions
	if len(buf) < 2 {
		return "", errNoSNI
	}
	extLen := int(binary.BigEndian.Uint16(buf))
	buf = buf[2:]
	if len(buf) < extLen {
		return "", errTruncatedHello
	}
	ext := buf[:extLen]

	for len(ext) >= 4 {
		extType := binary.BigEndian.Uint16(ext[0:2])
		thisExtLen := int(binary.BigEndian.Uint16(ext[2:4]))
		if len(ext) < 4+thisExtLen {
			return "", errTruncatedHello
		}
		body := ext[4 : 4+thisExtLen]

		if extType == sniExtensionType {
			return parseServerNameList(body)
		}

		ext = ext[4+thisExtLen:]
	}

	return "", errNoSNI
}

func parseServerNameList(body []byte) (string, error) {
	if len(body) < 2 {
		return "", errNoSNI
	}
	// server_name_list length prefix, then repeated (type, len, name) entries.
	body = body[2:]
	for len(body) >= 3 {
		nameType := body[0]
		nameLen := int(binary.BigEndian.Uint16(body[1:3]))
		body = body[3:]
		if len(body) < nameLen {
			return "", errTruncatedHello
		}
		if nameType == sniHostNameType {
			return string(body[:nameLen]), nil
		}
		body = body[nameLen:]
	}
	return "", errNoSNI
}

var (
	errNotHandshake     = sentinelError("https: content type is not Handshake")
	errBadRecordVersion = sentinelError("https: record version is not 0x0301")
	errNotClientHello   = sentinelError("https: handshake type is not ClientHello")
	errBadHelloVersion  = sentinelError("https: ClientHello version is not 0x0303")
	errTruncatedHello   = sentinelError("https: truncated ClientHello")
	errNoSNI            = sentinelError("https: server_name extension not found")
)
