// Package quictransport holds the process-wide QUIC server/client config
// singletons and the dial/listen helpers built from them, mirroring the
// quinn ServerConfig/ClientConfig globals of the original implementation.
package quictransport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"os"
	"sync/atomic"

	"github.com/quic-go/quic-go"

	cerrors "github.com/corridorproxy/corridor/internal/errors"
)

var (
	serverConfig atomic.Pointer[tls.Config]
	clientConfig atomic.Pointer[tls.Config]
	quicConfig   = &quic.Config{}
)

// InitServerConfig loads a certificate/key pair and installs it as the
// process-wide QUIC server TLS config.
func InitServerConfig(certPath, keyPath string) error {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return cerrors.NewBootstrapError("quic_server_config", err)
	}
	serverConfig.Store(&tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"corridor"},
	})
	return nil
}

// InitClientConfig loads a root CA certificate and installs it as the
// process-wide QUIC client TLS config, used to validate the server leaf.
func InitClientConfig(caCertPath string) error {
	pem, err := os.ReadFile(caCertPath)
	if err != nil {
		return cerrors.NewBootstrapError("quic_client_config", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return cerrors.NewBootstrapError("quic_client_config", errBadCACert)
	}
	clientConfig.Store(&tls.Config{
		RootCAs:    pool,
		NextProtos: []string{"corridor"},
	})
	return nil
}

var errBadCACert = quicTransportError("quictransport: CA certificate file contains no usable PEM block")

type quicTransportError string

func (e quicTransportError) Error() string { return string(e) }

// Listen starts a QUIC listener using the installed server config.
func Listen(addr string) (*quic.Listener, error) {
	cfg := serverConfig.Load()
	if cfg == nil {
		return nil, cerrors.NewBootstrapError("quic_listen", errNoServerConfig)
	}
	ln, err := quic.ListenAddr(addr, cfg, quicConfig)
	if err != nil {
		return nil, cerrors.NewBootstrapError("quic_listen", err)
	}
	return ln, nil
}

var errNoServerConfig = quicTransportError("quictransport: server config not initialized; call InitServerConfig first")

// Dial opens a QUIC connection using the installed client config.
func Dial(ctx context.Context, addr string) (*quic.Conn, error) {
	cfg := clientConfig.Load()
	if cfg == nil {
		return nil, cerrors.NewConnectError(addr, errNoClientConfig)
	}
	conn, err := quic.DialAddr(ctx, addr, cfg, quicConfig)
	if err != nil {
		return nil, cerrors.NewConnectError(addr, err)
	}
	return conn, nil
}

var errNoClientConfig = quicTransportError("quictransport: client config not initialized; call InitClientConfig first")
