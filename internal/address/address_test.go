package address

import (
	"net"
	"testing"
)

func TestRoundTripBuffer(t *testing.T) {
	cases := []Addr{
		NewIP(net.ParseIP("127.0.0.1"), 80),
		NewIP(net.ParseIP("::1"), 443),
		NewName("example.com", 8080),
	}

	for _, a := range cases {
		enc, err := Encode(a)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if len(enc) != EncodedLen(a) {
			t.Fatalf("EncodedLen mismatch: got %d want %d", EncodedLen(a), len(enc))
		}

		enc = append(enc, []byte("trailing")...)
		dec, pending, err := DecodeBuffer(enc)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if dec.String() != a.String() {
			t.Fatalf("got %s want %s", dec.String(), a.String())
		}
		if string(pending) != "trailing" {
			t.Fatalf("pending mismatch: %q", pending)
		}
	}
}

func TestDecodeBadAtyp(t *testing.T) {
	_, _, err := DecodeBuffer([]byte{9, 1, 2, 3})
	if err == nil {
		t.Fatal("expected error for bad atyp")
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, _, err := DecodeBuffer([]byte{1, 1, 2})
	if err == nil {
		t.Fatal("expected truncated error")
	}
}

func TestDecodeBadUTF8(t *testing.T) {
	buf := []byte{byte(TypeName), 1, 0xff, 0, 80}
	_, _, err := DecodeBuffer(buf)
	if err == nil {
		t.Fatal("expected utf8 error")
	}
}

func TestEmptyNameRejected(t *testing.T) {
	_, err := Encode(NewName("", 80))
	if err == nil {
		t.Fatal("expected error encoding empty name")
	}
}
