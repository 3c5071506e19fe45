package protocol

import (
	"bytes"
	"testing"

	"github.com/corridorproxy/corridor/internal/address"
)

func TestPlainResolveDestAddr(t *testing.T) {
	encoded, _ := address.Encode(address.NewName("example.com", 8080))
	sock := newFakeSocket(false, encoded)
	p := NewPlain()

	result, err := p.ResolveDestAddr(sock)
	if err != nil {
		t.Fatalf("ResolveDestAddr: %v", err)
	}
	if result.Destination.Host() != "example.com" || result.Destination.Port != 8080 {
		t.Fatalf("got dest %v", result.Destination)
	}
}

func TestPlainClientEncodePrependsHeaderOnce(t *testing.T) {
	p := NewPlain()
	p.SetResolvedResult(ResolvedResult{Destination: address.NewName("example.com", 80)})

	sock := newFakeSocket(false, []byte("first"), []byte("second"))

	first, err := p.ClientEncode(sock)
	if err != nil {
		t.Fatalf("ClientEncode: %v", err)
	}
	encodedAddr, _ := address.Encode(address.NewName("example.com", 80))
	if !bytes.Equal(first, append(append([]byte{}, encodedAddr...), "first"...)) {
		t.Fatalf("first frame should be prefixed with the address header, got %q", first)
	}

	second, err := p.ClientEncode(sock)
	if err != nil {
		t.Fatalf("ClientEncode: %v", err)
	}
	if !bytes.Equal(second, []byte("second")) {
		t.Fatalf("second frame should carry no header, got %q", second)
	}
}
