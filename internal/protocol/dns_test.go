package protocol

import (
	"testing"

	"github.com/miekg/dns"

	"github.com/corridorproxy/corridor/internal/address"
)

func TestDNSResolveValidQuery(t *testing.T) {
	msg := new(dns.Msg)
	msg.SetQuestion("example.com.", dns.TypeA)
	packet, err := msg.Pack()
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	resolver := address.NewIP(mustParseIPv4(), 53)
	sock := newFakeSocket(true, packet)
	d := NewDNS(resolver)

	result, err := d.ResolveDestAddr(sock)
	if err != nil {
		t.Fatalf("ResolveDestAddr: %v", err)
	}
	if result.Destination.Port != 53 {
		t.Fatalf("got dest %v", result.Destination)
	}
	if string(result.PendingBuf) != string(packet) {
		t.Fatal("pending buf should carry the raw query")
	}
}

func TestDNSRejectsNonDNSPayload(t *testing.T) {
	sock := newFakeSocket(true, []byte("not a dns message"))
	d := NewDNS(address.NewIP(mustParseIPv4(), 53))
	if _, err := d.ResolveDestAddr(sock); err == nil {
		t.Fatal("expected rejection for non-DNS payload")
	}
}

func mustParseIPv4() []byte {
	return []byte{8, 8, 8, 8}
}
