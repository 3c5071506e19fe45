// Package config loads and validates the CLI flag set and its JSON/YAML
// config-file mirror, and builds the internal/conn.Options a client or
// server instance runs from.
package config

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rs/zerolog/log"

	"github.com/corridorproxy/corridor/internal/acl"
	"github.com/corridorproxy/corridor/internal/address"
	"github.com/corridorproxy/corridor/internal/conn"
	"github.com/corridorproxy/corridor/internal/constants"
	"github.com/corridorproxy/corridor/internal/dnsclient"
	cerrors "github.com/corridorproxy/corridor/internal/errors"
	"github.com/corridorproxy/corridor/internal/monitor"
	"github.com/corridorproxy/corridor/internal/protocol"
	"github.com/corridorproxy/corridor/internal/quictransport"
	"github.com/corridorproxy/corridor/internal/sockopt"
	"github.com/corridorproxy/corridor/internal/tlsconfig"
)

// Config mirrors the CLI flag set so a JSON/YAML file can supply the same
// fields; fields omitted take the CLI defaults.
type Config struct {
	Bind               string `json:"bind,omitempty" yaml:"bind,omitempty"`
	ServerBind         string `json:"server_bind,omitempty" yaml:"server_bind,omitempty"`
	Key                string `json:"key,omitempty" yaml:"key,omitempty"`
	Encryption         string `json:"encryption,omitempty" yaml:"encryption,omitempty"`
	ACLFile            string `json:"acl,omitempty" yaml:"acl,omitempty"`
	DNSServer          string `json:"dns_server,omitempty" yaml:"dns_server,omitempty"`
	UDPOverTCP         bool   `json:"udp_over_tcp,omitempty" yaml:"udp_over_tcp,omitempty"`
	TLS                bool   `json:"tls,omitempty" yaml:"tls,omitempty"`
	QUIC               bool   `json:"quic,omitempty" yaml:"quic,omitempty"`
	TLSCert            string `json:"tls_cert,omitempty" yaml:"tls_cert,omitempty"`
	TLSKey             string `json:"tls_key,omitempty" yaml:"tls_key,omitempty"`
	QUICMaxConcurrency uint16 `json:"quic_max_concurrency,omitempty" yaml:"quic_max_concurrency,omitempty"`
	PinDestAddr        string `json:"pin_dest_addr,omitempty" yaml:"pin_dest_addr,omitempty"`
	PACBind            string `json:"pac_bind,omitempty" yaml:"pac_bind,omitempty"`
	PACProxy           string `json:"pac_proxy,omitempty" yaml:"pac_proxy,omitempty"`
	WithBasicAuth      string `json:"with_basic_auth,omitempty" yaml:"with_basic_auth,omitempty"`
	Monitor            string `json:"monitor,omitempty" yaml:"monitor,omitempty"`
	Daemonize          bool   `json:"daemonize,omitempty" yaml:"daemonize,omitempty"`
	LogLevel           string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// Role mirrors conn.Role so this package doesn't force every caller to
// import internal/conn just to name "client"/"server".
type Role = conn.Role

const (
	RoleClient = conn.RoleClient
	RoleServer = conn.RoleServer
)

// LoadFile reads path and unmarshals it as JSON or YAML chosen by
// extension; any other extension is a validation error.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.NewArgumentError("reading config file: " + err.Error())
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, cerrors.NewArgumentError("parsing JSON config: " + err.Error())
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, cerrors.NewArgumentError("parsing YAML config: " + err.Error())
		}
	default:
		return nil, cerrors.NewArgumentError("unrecognized config extension " + ext + " (want .json, .yaml, or .yml)")
	}
	return &cfg, nil
}

// ApplyDefaults fills the bind address and DNS server when the caller
// (CLI flags or config file) left them empty.
func (c *Config) ApplyDefaults(role Role) {
	if c.Bind == "" {
		if role == RoleServer {
			c.Bind = constants.DefaultServerBind
		} else {
			c.Bind = constants.DefaultClientBind
		}
	}
	if c.DNSServer == "" {
		c.DNSServer = constants.DefaultDNSServer
	}
	if c.Encryption == "" {
		c.Encryption = string(conn.EncryptionErp)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate enforces the CLI flag-combination rules.
func (c *Config) Validate(role Role) error {
	if role == RoleServer && c.Key == "" {
		return cerrors.NewArgumentError("--key is required on server")
	}
	if role == RoleClient && c.ServerBind != "" && c.Key == "" {
		return cerrors.NewArgumentError("--key is required when --server-bind is set")
	}
	if c.Encryption != string(conn.EncryptionPlain) && c.Encryption != string(conn.EncryptionErp) {
		return cerrors.NewArgumentError("--encryption must be plain or erp")
	}
	if c.TLS && c.QUIC {
		return cerrors.NewArgumentError("--tls and --quic are mutually exclusive")
	}
	if (c.TLS || c.QUIC) && c.TLSCert == "" {
		return cerrors.NewArgumentError("--tls-cert is required with --tls or --quic")
	}
	if role == RoleServer && (c.TLS || c.QUIC) && c.TLSKey == "" {
		return cerrors.NewArgumentError("--tls-key is required on server with --tls or --quic")
	}
	if role == RoleClient && c.UDPOverTCP && c.ServerBind == "" {
		return cerrors.NewArgumentError("--udp-over-tcp requires --server-bind")
	}
	if role == RoleClient && c.PACBind != "" && c.ACLFile == "" {
		return cerrors.NewArgumentError("--pac-bind requires --acl")
	}
	return nil
}

// Merge layers cli over file: a non-empty string field or true bool field
// on cli wins, otherwise file's value is kept. Used by cmd/corridor when
// both --config and ordinary flags are present, so flags override the
// file rather than the file silently winning.
func Merge(cli, file *Config) *Config {
	if file == nil {
		return cli
	}
	out := *file
	if cli.Bind != "" {
		out.Bind = cli.Bind
	}
	if cli.ServerBind != "" {
		out.ServerBind = cli.ServerBind
	}
	if cli.Key != "" {
		out.Key = cli.Key
	}
	if cli.Encryption != "" {
		out.Encryption = cli.Encryption
	}
	if cli.ACLFile != "" {
		out.ACLFile = cli.ACLFile
	}
	if cli.DNSServer != "" {
		out.DNSServer = cli.DNSServer
	}
	if cli.UDPOverTCP {
		out.UDPOverTCP = true
	}
	if cli.TLS {
		out.TLS = true
	}
	if cli.QUIC {
		out.QUIC = true
	}
	if cli.TLSCert != "" {
		out.TLSCert = cli.TLSCert
	}
	if cli.TLSKey != "" {
		out.TLSKey = cli.TLSKey
	}
	if cli.QUICMaxConcurrency != 0 {
		out.QUICMaxConcurrency = cli.QUICMaxConcurrency
	}
	if cli.PinDestAddr != "" {
		out.PinDestAddr = cli.PinDestAddr
	}
	if cli.PACBind != "" {
		out.PACBind = cli.PACBind
	}
	if cli.PACProxy != "" {
		out.PACProxy = cli.PACProxy
	}
	if cli.WithBasicAuth != "" {
		out.WithBasicAuth = cli.WithBasicAuth
	}
	if cli.Monitor != "" {
		out.Monitor = cli.Monitor
	}
	if cli.Daemonize {
		out.Daemonize = true
	}
	if cli.LogLevel != "" {
		out.LogLevel = cli.LogLevel
	}
	return &out
}

// Built bundles the runtime Options together with the owned resources a
// caller must close/stop on shutdown.
type Built struct {
	Options *conn.Options
	ACL     *acl.Table
	Monitor *monitor.Client
}

// Build validates c and constructs the conn.Options (plus owned
// singletons) a client or server instance runs from.
func Build(c *Config, role Role) (*Built, error) {
	c.ApplyDefaults(role)
	if err := c.Validate(role); err != nil {
		return nil, err
	}

	dnsTarget, err := address.FromHostPort(c.DNSServer, 53)
	if err != nil {
		return nil, cerrors.NewArgumentError("--dns-server: " + err.Error())
	}
	dnsclient.Init(c.DNSServer)

	aclTable := acl.New()
	if c.ACLFile != "" {
		if err := aclTable.LoadFile(c.ACLFile); err != nil {
			return nil, err
		}
		go func() {
			if err := aclTable.Watch(context.Background(), c.ACLFile); err != nil {
				log.Warn().Err(err).Msg("acl watcher exited")
			}
		}()
	}

	mon, err := monitor.Dial(c.Monitor)
	if err != nil {
		return nil, cerrors.NewBootstrapError("monitor_dial", err)
	}

	opts := &conn.Options{
		Role:           role,
		Encryption:     conn.Encryption(c.Encryption),
		Key:            []byte(c.Key),
		PeerAddr:       c.ServerBind,
		UDPOverTCP:     c.UDPOverTCP,
		DNSSniffTarget: dnsTarget,
		ACL:            aclTable,
		Resolver:       dnsclient.Default(),
		IdleTimeout:    constants.IdleTimeout,
		Logger:         log.Logger,
		Monitor:        mon,
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := net.Dialer{Control: sockopt.Control}
			return d.DialContext(ctx, network, addr)
		},
	}

	if c.PinDestAddr != "" {
		pinned, err := address.FromHostPort(c.PinDestAddr, 0)
		if err != nil {
			return nil, cerrors.NewArgumentError("--pin-dest-addr: " + err.Error())
		}
		opts.PinDestAddr = &pinned
	}

	if c.WithBasicAuth != "" {
		user, pass, ok := strings.Cut(c.WithBasicAuth, ":")
		if !ok {
			return nil, cerrors.NewArgumentError("--with-basic-auth must be user:pass")
		}
		opts.BasicAuth = &protocol.BasicAuth{User: user, Pass: pass}
	}

	if bindAddr, err := address.FromHostPort(c.Bind, 0); err == nil {
		opts.BindAddr = &bindAddr
	}

	if err := wireTunnelTransport(c, role, opts); err != nil {
		return nil, err
	}

	return &Built{Options: opts, ACL: aclTable, Monitor: mon}, nil
}

// wireTunnelTransport sets the TLS/QUIC dialer fields Outbound needs to
// reach the tunnel peer. Only the client role dials a tunnel peer (server
// role's Outbound always dials the resolved destination directly); the
// matching server-side listener config is cmd/corridor's job, since that's
// listener bootstrap, not per-connection Options.
func wireTunnelTransport(c *Config, role Role, opts *conn.Options) error {
	if role != RoleClient {
		return nil
	}
	switch {
	case c.QUIC:
		if err := quictransport.InitClientConfig(c.TLSCert); err != nil {
			return err
		}
		opts.TunnelQUICDial = dialQUICTunnel
	case c.TLS:
		serverName, _, _ := net.SplitHostPort(c.ServerBind)
		cfg, err := tlsconfig.NewClientConfig(c.TLSCert, serverName)
		if err != nil {
			return err
		}
		opts.TunnelTLSConfig = cfg
	}
	return nil
}

// dialQUICTunnel is a package-level indirection to internal/conn's QUIC
// dialer, kept as a var so tests can stub it without a live QUIC peer.
var dialQUICTunnel = conn.DialQUICTunnel

// IdleConnectTimeout mirrors constants.TCPConnectTimeout.
const IdleConnectTimeout = 10 * time.Second
