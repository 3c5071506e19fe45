package service

import (
	"crypto/tls"
	"net"

	cerrors "github.com/corridorproxy/corridor/internal/errors"
)

// TLS is the tunnel-transport listener variant: a TCP listener wrapped in
// the process-wide server TLS config.
type TLS struct {
	Config *tls.Config
}

// Start implements Listener.
func (t *TLS) Start(bind string, out chan<- Accepted, shutdown <-chan struct{}) error {
	if t.Config == nil {
		return cerrors.NewBootstrapError("tls_listen", errNoTLSConfig)
	}
	ln, err := tls.Listen("tcp", bind, t.Config)
	if err != nil {
		return cerrors.NewBootstrapError("tls_listen", err)
	}
	return acceptLoop(ln, KindTLS, func(c net.Conn) RawConn { return &tcpConn{Conn: c} }, out, shutdown)
}

type tlsServiceError string

func (e tlsServiceError) Error() string { return string(e) }

const errNoTLSConfig = tlsServiceError("service: TLS server config not configured")
