package errors

import (
	"fmt"
	"testing"
)

func TestErrorTypes(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		wantType ErrorType
	}{
		{"dns", NewDNSError("example.com:53", fmt.Errorf("no such host")), ErrorTypeDNS},
		{"connect", NewConnectError("10.0.0.1:443", fmt.Errorf("refused")), ErrorTypeConnect},
		{"tls", NewTLSError("10.0.0.1:443", fmt.Errorf("handshake")), ErrorTypeTLS},
		{"aead", NewAEADError("open", fmt.Errorf("auth failed")), ErrorTypeAEAD},
		{"frame too large", NewFrameTooLargeError(0x4000), ErrorTypeFrameTooLarge},
		{"short datagram", NewShortDatagramError(10, 4), ErrorTypeShortDatagram},
		{"probe", NewProbeFailed("socks5", fmt.Errorf("bad greeting")), ErrorTypeProbe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.wantType {
				t.Fatalf("got type %q, want %q", tt.err.Type, tt.wantType)
			}
			if tt.err.Error() == "" {
				t.Fatal("expected non-empty error string")
			}
		})
	}
}

func TestErrorIs(t *testing.T) {
	err := NewDNSError("x", nil)
	if !err.Is(&Error{Type: ErrorTypeDNS}) {
		t.Fatal("expected Is to match by type")
	}
	if err.Is(&Error{Type: ErrorTypeTLS}) {
		t.Fatal("did not expect Is to match a different type")
	}
}

func TestFatal(t *testing.T) {
	if Fatal(ErrorTypeProbe) {
		t.Fatal("probe failures are recovered locally, not fatal")
	}
	if !Fatal(ErrorTypeConnect) {
		t.Fatal("connect failures must be fatal for the connection")
	}
}
