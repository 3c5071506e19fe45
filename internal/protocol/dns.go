package protocol

import (
	"github.com/miekg/dns"

	"github.com/corridorproxy/corridor/internal/address"
	cerrors "github.com/corridorproxy/corridor/internal/errors"
)

// DNS sniffs a UDP datagram as a DNS query and rewrites the destination to
// the configured resolver.
type DNS struct {
	unsupported
	resolver address.Addr
}

// NewDNS builds a DNS sniffer targeting resolver for every matched query.
func NewDNS(resolver address.Addr) *DNS {
	return &DNS{resolver: resolver}
}

// Name implements Protocol.
func (d *DNS) Name() Kind { return KindDNS }

// ResolveDestAddr implements Protocol.
func (d *DNS) ResolveDestAddr(sock Socket) (ResolvedResult, error) {
	packet, err := sock.ReadSome()
	if err != nil {
		return ResolvedResult{}, err
	}
	if !IsDNSQuery(packet) {
		return ResolvedResult{}, cerrors.NewProbeFailed("dns", errNotDNSQuery)
	}
	return ResolvedResult{Destination: d.resolver, Kind: KindDNS, PendingBuf: packet}, nil
}

// IsDNSQuery reports whether buf parses as a DNS message.
func IsDNSQuery(buf []byte) bool {
	msg := new(dns.Msg)
	return msg.Unpack(buf) == nil
}

var errNotDNSQuery = sentinelError("dns: payload does not parse as a DNS message")
