package conn

import (
	"context"

	"github.com/quic-go/quic-go"

	"github.com/corridorproxy/corridor/internal/quictransport"
)

// quicTransport adapts one QUIC bidirectional stream opened against the
// tunnel peer to Transport, mirroring service.quicConn on the accept side.
type quicTransport struct {
	sess   *quic.Conn
	stream *quic.Stream
}

// DialQUICTunnel opens a QUIC connection to addr using the process-wide
// client config (internal/quictransport) and opens one bidirectional
// stream on it — the client-role counterpart of service.QUIC's accept
// loop, and the default value wired into Options.TunnelQUICDial when
// --quic is configured.
func DialQUICTunnel(ctx context.Context, addr string) (Transport, error) {
	sess, err := quictransport.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	stream, err := sess.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return &quicTransport{sess: sess, stream: stream}, nil
}

func (t *quicTransport) ReadSome(p []byte) (int, error) { return t.stream.Read(p) }

func (t *quicTransport) Send(buf []byte) error {
	_, err := t.stream.Write(buf)
	return err
}

func (t *quicTransport) Close() error { return t.stream.Close() }

func (t *quicTransport) RemoteAddr() string {
	if t.sess == nil {
		return ""
	}
	return t.sess.RemoteAddr().String()
}
