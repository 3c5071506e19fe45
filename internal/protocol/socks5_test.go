package protocol

import (
	"bytes"
	"net"
	"testing"

	"github.com/corridorproxy/corridor/internal/address"
)

func TestSocks5ResolveTCP(t *testing.T) {
	greeting := []byte{socksVersion5, 1, socksMethodNo}
	destAddr, _ := address.Encode(address.NewName("example.com", 80))
	req := append([]byte{socksVersion5, 0x01, socksRsvByte}, destAddr...)

	sock := newFakeSocket(false, append(greeting, req...))
	s := NewSocks5(nil)

	result, err := s.ResolveDestAddr(sock)
	if err != nil {
		t.Fatalf("ResolveDestAddr: %v", err)
	}
	if result.Destination.Host() != "example.com" || result.Destination.Port != 80 {
		t.Fatalf("got dest %v", result.Destination)
	}
	if len(sock.sent) != 2 {
		t.Fatalf("expected 2 sends (method select + reply), got %d", len(sock.sent))
	}
	if !bytes.Equal(sock.sent[0], []byte{socksVersion5, socksMethodNo}) {
		t.Fatalf("bad method-select reply: %v", sock.sent[0])
	}
}

func TestSocks5RejectsZeroMethods(t *testing.T) {
	sock := newFakeSocket(false, []byte{socksVersion5, 0})
	s := NewSocks5(nil)
	if _, err := s.ResolveDestAddr(sock); err == nil {
		t.Fatal("expected error for NMETHODS=0")
	}
}

func TestSocks5RejectsBindCommand(t *testing.T) {
	greeting := []byte{socksVersion5, 1, socksMethodNo}
	destAddr, _ := address.Encode(address.NewName("example.com", 80))
	req := append([]byte{socksVersion5, socksCmdBind, socksRsvByte}, destAddr...)
	sock := newFakeSocket(false, append(greeting, req...))
	s := NewSocks5(nil)
	if _, err := s.ResolveDestAddr(sock); err == nil {
		t.Fatal("expected error for BIND command")
	}
}

func TestSocks5ResolveUDP(t *testing.T) {
	destAddr, _ := address.Encode(address.NewIP(net.ParseIP("1.2.3.4"), 53))
	packet := append([]byte{0, 0, 0}, destAddr...)
	packet = append(packet, []byte("payload")...)

	sock := newFakeSocket(true, packet)
	s := NewSocks5(nil)
	result, err := s.ResolveDestAddr(sock)
	if err != nil {
		t.Fatalf("ResolveDestAddr: %v", err)
	}
	if result.Destination.Port != 53 {
		t.Fatalf("got port %d", result.Destination.Port)
	}
	if !bytes.Equal(result.PendingBuf, []byte("payload")) {
		t.Fatalf("got pending %q", result.PendingBuf)
	}
}

func TestSocks5UDPTruncatedHeader(t *testing.T) {
	sock := newFakeSocket(true, []byte{0, 0})
	s := NewSocks5(nil)
	if _, err := s.ResolveDestAddr(sock); err == nil {
		t.Fatal("expected truncated-header error")
	}
}
