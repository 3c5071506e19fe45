package protocol

import (
	"bytes"
	"testing"
)

func TestDirectCodecIsIdentity(t *testing.T) {
	d := NewDirect()
	sock := newFakeSocket(false, []byte("payload"))

	out, err := d.ClientEncode(sock)
	if err != nil {
		t.Fatalf("ClientEncode: %v", err)
	}
	if !bytes.Equal(out, []byte("payload")) {
		t.Fatalf("got %q", out)
	}
}

func TestDirectResolveDestAddrUnsupported(t *testing.T) {
	d := NewDirect()
	sock := newFakeSocket(false, []byte("x"))
	if _, err := d.ResolveDestAddr(sock); err != ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
