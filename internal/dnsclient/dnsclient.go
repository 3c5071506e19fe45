// Package dnsclient implements the process-wide DNS resolver singleton used
// for the outbound resolve step: a single upstream server, a fixed lookup
// timeout, first-address selection.
package dnsclient

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/miekg/dns"

	"github.com/corridorproxy/corridor/internal/address"
	"github.com/corridorproxy/corridor/internal/constants"
	cerrors "github.com/corridorproxy/corridor/internal/errors"
)

// Resolver resolves name hosts to IPs against a single configured upstream.
type Resolver struct {
	upstream string // "host:port"
	client   *dns.Client
}

// New builds a Resolver targeting upstream ("host:port"). An empty upstream
// falls back to constants.DefaultDNSServer.
func New(upstream string) *Resolver {
	if upstream == "" {
		upstream = constants.DefaultDNSServer
	}
	return &Resolver{
		upstream: upstream,
		client:   &dns.Client{Timeout: constants.DNSLookupTimeout},
	}
}

// Lookup resolves addr to an equivalent Addr carrying an IP, leaving IP
// addresses untouched. It queries A then, if that query fails or returns
// no address, AAAA.
func (r *Resolver) Lookup(ctx context.Context, addr address.Addr) (address.Addr, error) {
	if addr.Type != address.TypeName {
		return addr, nil
	}

	ip, err := r.lookupIP(ctx, addr.Name)
	if err != nil {
		return address.Addr{}, cerrors.NewDNSError(addr.Name, err)
	}
	return address.NewIP(ip, addr.Port), nil
}

func (r *Resolver) lookupIP(ctx context.Context, name string) (net.IP, error) {
	fqdn := dns.Fqdn(name)

	if ip, err := r.queryOne(ctx, fqdn, dns.TypeA); err == nil {
		return ip, nil
	}
	return r.queryOne(ctx, fqdn, dns.TypeAAAA)
}

func (r *Resolver) queryOne(ctx context.Context, fqdn string, qtype uint16) (net.IP, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, qtype)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.upstream)
	if err != nil {
		return nil, err
	}
	for _, rr := range resp.Answer {
		switch rec := rr.(type) {
		case *dns.A:
			return rec.A, nil
		case *dns.AAAA:
			return rec.AAAA, nil
		}
	}
	return nil, errNoAnswer
}

var errNoAnswer = dnsClientError("dnsclient: no A/AAAA answer")

type dnsClientError string

func (e dnsClientError) Error() string { return string(e) }

var (
	defaultOnce     sync.Once
	defaultResolver atomic.Pointer[Resolver]
)

// Init installs the process-wide singleton. Safe to call once at startup;
// subsequent calls are no-ops so late reconfiguration never races readers.
func Init(upstream string) {
	defaultOnce.Do(func() {
		defaultResolver.Store(New(upstream))
	})
}

// Default returns the process-wide singleton, constructing one against
// constants.DefaultDNSServer if Init was never called.
func Default() *Resolver {
	if r := defaultResolver.Load(); r != nil {
		return r
	}
	Init("")
	return defaultResolver.Load()
}
