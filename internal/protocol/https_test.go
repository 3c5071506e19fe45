package protocol

import (
	"encoding/binary"
	"testing"
)

// buildClientHello assembles a minimal ClientHello handshake body carrying
// a single SNI host_name extension, for feeding parseClientHelloSNI.
func buildClientHello(host string) []byte {
	var sni []byte
	sni = append(sni, sniHostNameType)
	nameLen := make([]byte, 2)
	binary.BigEndian.PutUint16(nameLen, uint16(len(host)))
	sni = append(sni, nameLen...)
	sni = append(sni, []byte(host)...)

	serverNameList := make([]byte, 2)
	binary.BigEndian.PutUint16(serverNameList, uint16(len(sni)))
	serverNameList = append(serverNameList, sni...)

	var ext []byte
	ext = append(ext, 0x00, 0x00) // extension type: server_name
	extBodyLen := make([]byte, 2)
	binary.BigEndian.PutUint16(extBodyLen, uint16(len(serverNameList)))
	ext = append(ext, extBodyLen...)
	ext = append(ext, serverNameList...)

	var body []byte
	body = append(body, 0x03, 0x03) // client version
	body = append(body, make([]byte, 32)...) // random
	body = append(body, 0x00)                // session id len
	body = append(body, 0x00, 0x00)          // cipher suites len
	body = append(body, 0x00)                // compression methods len
	extLen := make([]byte, 2)
	binary.BigEndian.PutUint16(extLen, uint16(len(ext)))
	body = append(body, extLen...)
	body = append(body, ext...)

	handshake := make([]byte, 0, 4+len(body))
	handshake = append(handshake, tlsHandshakeTypeClientHi)
	bodyLen := len(body)
	handshake = append(handshake, byte(bodyLen>>16), byte(bodyLen>>8), byte(bodyLen))
	handshake = append(handshake, body...)
	return handshake
}

func buildRecord(handshake []byte) []byte {
	record := []byte{tlsContentTypeHandshake, 0x03, 0x01}
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(handshake)))
	record = append(record, lenBuf...)
	record = append(record, handshake...)
	return record
}

func TestHTTPSResolveSNI(t *testing.T) {
	record := buildRecord(buildClientHello("example.com"))
	sock := newFakeSocket(false, record)
	h := NewHTTPS()

	result, err := h.ResolveDestAddr(sock)
	if err != nil {
		t.Fatalf("ResolveDestAddr: %v", err)
	}
	if result.Destination.Host() != "example.com" || result.Destination.Port != 443 {
		t.Fatalf("got dest %v", result.Destination)
	}
	if sock.restored == nil {
		t.Fatal("expected the record to be restored after a successful parse")
	}
}

func TestHTTPSRejectsNonHandshake(t *testing.T) {
	sock := newFakeSocket(false, []byte{0x17, 0x03, 0x01, 0x00, 0x00})
	h := NewHTTPS()
	if _, err := h.ResolveDestAddr(sock); err == nil {
		t.Fatal("expected rejection for non-handshake content type")
	}
}

func TestHTTPSRejectsMissingSNI(t *testing.T) {
	body := []byte{0x03, 0x03}
	body = append(body, make([]byte, 32)...)
	body = append(body, 0x00)       // session id len
	body = append(body, 0x00, 0x00) // cipher suites len
	body = append(body, 0x00)       // compression methods len
	body = append(body, 0x00, 0x00) // extensions len = 0

	handshake := []byte{tlsHandshakeTypeClientHi, 0, 0, byte(len(body))}
	handshake = append(handshake, body...)
	record := buildRecord(handshake)

	sock := newFakeSocket(false, record)
	h := NewHTTPS()
	if _, err := h.ResolveDestAddr(sock); err == nil {
		t.Fatal("expected rejection for ClientHello with no SNI extension")
	}
}
