package service

import (
	"context"
	"crypto/tls"

	"github.com/quic-go/quic-go"

	cerrors "github.com/corridorproxy/corridor/internal/errors"
)

// QUIC is the QUIC-transport listener variant. Every bidirectional stream
// accepted on a QUIC connection becomes one RawConn, matching
// the "one socket per accepted stream" rule the other listener variants
// follow.
type QUIC struct {
	TLSConfig      *tls.Config
	MaxConcurrency uint16 // --quic-max-concurrency; 0 means quic-go's default
}

// Start implements Listener.
func (q *QUIC) Start(bind string, out chan<- Accepted, shutdown <-chan struct{}) error {
	if q.TLSConfig == nil {
		return cerrors.NewBootstrapError("quic_listen", errNoQUICConfig)
	}
	quicConf := &quic.Config{}
	if q.MaxConcurrency > 0 {
		quicConf.MaxIncomingStreams = int64(q.MaxConcurrency)
	}
	ln, err := quic.ListenAddr(bind, q.TLSConfig, quicConf)
	if err != nil {
		return cerrors.NewBootstrapError("quic_listen", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-shutdown:
			ln.Close()
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		sess, err := ln.Accept(ctx)
		if err != nil {
			select {
			case <-shutdown:
				return nil
			default:
				return cerrors.NewBootstrapError("quic_accept", err)
			}
		}
		go q.acceptStreams(ctx, sess, out, shutdown)
	}
}

func (q *QUIC) acceptStreams(ctx context.Context, sess *quic.Conn, out chan<- Accepted, shutdown <-chan struct{}) {
	for {
		stream, err := sess.AcceptStream(ctx)
		if err != nil {
			return
		}
		conn := &quicConn{sess: sess, stream: stream}
		select {
		case out <- Accepted{Conn: conn, Kind: KindQUIC}:
		case <-shutdown:
			conn.Close()
			return
		}
	}
}

// quicConn adapts one QUIC bidirectional stream to RawConn. RemoteAddr
// comes from the parent session since a stream itself has no peer address.
type quicConn struct {
	sess   *quic.Conn
	stream *quic.Stream
}

func (c *quicConn) ReadSome(p []byte) (int, error) { return c.stream.Read(p) }

func (c *quicConn) Send(buf []byte) error {
	_, err := c.stream.Write(buf)
	return err
}

func (c *quicConn) Close() error { return c.stream.Close() }

func (c *quicConn) RemoteAddr() string {
	if c.sess == nil {
		return ""
	}
	return c.sess.RemoteAddr().String()
}

type quicServiceError string

func (e quicServiceError) Error() string { return string(e) }

const errNoQUICConfig = quicServiceError("service: QUIC server TLS config not configured")
