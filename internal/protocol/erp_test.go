package protocol

import (
	"bytes"
	"testing"

	"github.com/corridorproxy/corridor/internal/address"
)

func TestErpClientServerResolveRoundTrip(t *testing.T) {
	key := []byte("a shared tunnel key")

	client, err := NewErpClient(key)
	if err != nil {
		t.Fatalf("NewErpClient: %v", err)
	}
	client.SetResolvedResult(ResolvedResult{Destination: address.NewName("example.com", 443)})

	clientSock := newFakeSocket(false, []byte("hello"))
	frame, err := client.ClientEncode(clientSock)
	if err != nil {
		t.Fatalf("ClientEncode: %v", err)
	}

	server := NewErpServer(key)
	serverSock := newFakeSocket(false, frame)

	result, err := server.ResolveDestAddr(serverSock)
	if err != nil {
		t.Fatalf("ResolveDestAddr: %v", err)
	}
	if result.Destination.Host() != "example.com" || result.Destination.Port != 443 {
		t.Fatalf("got dest %v", result.Destination)
	}
	if !bytes.Equal(result.PendingBuf, []byte("hello")) {
		t.Fatalf("got pending %q", result.PendingBuf)
	}
}

func TestErpServerEncodeClientDecodeRoundTrip(t *testing.T) {
	key := []byte("another tunnel key")

	server := NewErpServer(key)
	// Prime the server's key the way ResolveDestAddr would, without needing
	// a full client handshake: borrow a client codec's salt derivation.
	client, err := NewErpClient(key)
	if err != nil {
		t.Fatalf("NewErpClient: %v", err)
	}

	seed := newFakeSocket(false, []byte("seed"))
	seedFrame, err := client.ClientEncode(seed)
	if err != nil {
		t.Fatalf("ClientEncode: %v", err)
	}
	seedSock := newFakeSocket(false, seedFrame)
	if _, err := server.ResolveDestAddr(seedSock); err != nil {
		t.Fatalf("ResolveDestAddr: %v", err)
	}

	respSock := newFakeSocket(false, []byte("response"))
	encoded, err := server.ServerEncode(respSock)
	if err != nil {
		t.Fatalf("ServerEncode: %v", err)
	}

	clientReadSock := newFakeSocket(false, encoded)
	decoded, err := client.ClientDecode(clientReadSock)
	if err != nil {
		t.Fatalf("ClientDecode: %v", err)
	}
	if !bytes.Equal(decoded, []byte("response")) {
		t.Fatalf("got %q", decoded)
	}
}
