//go:build linux

package sockopt

import (
	"context"
	"net"
	"testing"
)

func TestControlDoesNotBreakDialing(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	dialer := net.Dialer{Control: Control}
	conn, err := dialer.DialContext(context.Background(), "tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial with Control set: %v", err)
	}
	defer conn.Close()
}
