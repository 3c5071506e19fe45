package protocol

import (
	"bytes"
	"testing"
)

func TestHTTPResolveConnect(t *testing.T) {
	req := []byte("CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n")
	sock := newFakeSocket(false, req)
	h := NewHTTP(nil)

	result, err := h.ResolveDestAddr(sock)
	if err != nil {
		t.Fatalf("ResolveDestAddr: %v", err)
	}
	if result.Kind != KindHTTPProxy {
		t.Fatalf("got kind %v", result.Kind)
	}
	if result.Destination.Host() != "example.com" || result.Destination.Port != 443 {
		t.Fatalf("got dest %v", result.Destination)
	}
	if len(sock.sent) != 1 || !bytes.Contains(sock.sent[0], []byte("200")) {
		t.Fatalf("expected 200 Connection Established, got %v", sock.sent)
	}
}

func TestHTTPResolvePlainGetUsesHostHeader(t *testing.T) {
	req := []byte("GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n")
	sock := newFakeSocket(false, req)
	h := NewHTTP(nil)

	result, err := h.ResolveDestAddr(sock)
	if err != nil {
		t.Fatalf("ResolveDestAddr: %v", err)
	}
	if result.Kind != KindHTTP {
		t.Fatalf("got kind %v", result.Kind)
	}
	if result.Destination.Host() != "example.com" || result.Destination.Port != 80 {
		t.Fatalf("got dest %v", result.Destination)
	}
	if !bytes.Equal(result.PendingBuf, req) {
		t.Fatalf("pending buf should carry the full request unchanged, got %q", result.PendingBuf)
	}
}

func TestHTTPNoHostHeaderFails(t *testing.T) {
	req := []byte("GET /index.html HTTP/1.1\r\n\r\n")
	sock := newFakeSocket(false, req)
	h := NewHTTP(nil)
	if _, err := h.ResolveDestAddr(sock); err == nil {
		t.Fatal("expected error when no Host header and no absolute URI")
	}
}

func TestHTTPBasicAuthRejected(t *testing.T) {
	req := []byte("CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n")
	sock := newFakeSocket(false, req)
	h := NewHTTP(&BasicAuth{User: "alice", Pass: "secret"})

	if _, err := h.ResolveDestAddr(sock); err == nil {
		t.Fatal("expected auth failure")
	}
	if len(sock.sent) != 1 || !bytes.Contains(sock.sent[0], []byte("407")) {
		t.Fatalf("expected 407 response, got %v", sock.sent)
	}
}

func TestHTTPBasicAuthAccepted(t *testing.T) {
	req := []byte("CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n" +
		"Proxy-Authorization: Basic YWxpY2U6c2VjcmV0\r\n\r\n")
	sock := newFakeSocket(false, req)
	h := NewHTTP(&BasicAuth{User: "alice", Pass: "secret"})

	result, err := h.ResolveDestAddr(sock)
	if err != nil {
		t.Fatalf("ResolveDestAddr: %v", err)
	}
	if result.Kind != KindHTTPProxy {
		t.Fatalf("got kind %v", result.Kind)
	}
}
