package conn

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/corridorproxy/corridor/internal/acl"
	"github.com/corridorproxy/corridor/internal/address"
	"github.com/corridorproxy/corridor/internal/dnsclient"
	"github.com/corridorproxy/corridor/internal/monitor"
	"github.com/corridorproxy/corridor/internal/protocol"
)

// Role distinguishes the client (local ingress) instance from the server
// (tunnel terminator) instance.
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
)

// Encryption selects the tunnel codec a client/server pair agree on.
type Encryption string

const (
	EncryptionPlain Encryption = "plain"
	EncryptionErp   Encryption = "erp"
)

// Options are the process-wide settings every Connection is built from.
// One Options is constructed at startup from CLI/config and shared
// read-only by every spawned Connection.
type Options struct {
	Role       Role
	Encryption Encryption
	Key        []byte

	// PeerAddr is the tunnel peer ("host:port"), client role only. Empty
	// means direct relay with no tunnel.
	PeerAddr string
	// UDPOverTCP carries UDP payloads over the TCP/TLS/QUIC tunnel
	// transport instead of a separate UDP dial, client role only.
	UDPOverTCP bool

	// PinDestAddr, when set, skips Inbound probing entirely (client role).
	PinDestAddr *address.Addr

	// DNSSniffTarget is the resolver address a DNS-sniffed destination is
	// rewritten to, and the address a server-side DNS pending_buf override
	// dials.
	DNSSniffTarget address.Addr

	// BasicAuth gates the local HTTP endpoint, client role only.
	BasicAuth *protocol.BasicAuth

	// BindAddr is echoed in SOCKS5 CONNECT replies as BND.ADDR.
	BindAddr *address.Addr

	// ACL is consulted by Outbound to decide whether a client-role
	// connection is relayed through the tunnel or direct.
	ACL *acl.Table

	Resolver *dnsclient.Resolver

	// Dial performs the outbound TCP connect, wired (on Linux) with the
	// SO_MARK socket option; Outbound bounds each call with a context
	// carrying constants.TCPConnectTimeout.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)

	// TunnelTLSConfig / TunnelQUICDial are set when the tunnel transport is
	// TLS or QUIC respectively (mutually exclusive, client role dial side).
	TunnelTLSConfig *tls.Config
	TunnelQUICDial  func(ctx context.Context, addr string) (Transport, error)

	IdleTimeout time.Duration
	Logger      zerolog.Logger

	// Monitor reports connection lifecycle facts to the telemetry side
	// channel, an external collaborator service. Nil disables it.
	Monitor *monitor.Client
}
