package protocol

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/corridorproxy/corridor/internal/address"
	cerrors "github.com/corridorproxy/corridor/internal/errors"
)

// BasicAuth is an optional gate on the local HTTP endpoint: when set,
// requests lacking a matching Proxy-Authorization are rejected with 407.
type BasicAuth struct {
	User string
	Pass string
}

func (b BasicAuth) matches(r *http.Request) bool {
	if b.User == "" {
		return true
	}
	hdr := r.Header.Get("Proxy-Authorization")
	const prefix = "Basic "
	if !strings.HasPrefix(hdr, prefix) {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(hdr, prefix))
	if err != nil {
		return false
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	return ok && user == b.User && pass == b.Pass
}

// HTTP sniffs plain HTTP requests and HTTP CONNECT tunnel requests.
type HTTP struct {
	unsupported
	auth *BasicAuth
}

// NewHTTP builds an HTTP sniffer. auth, when non-nil, enables the
// basic-auth gate.
func NewHTTP(auth *BasicAuth) *HTTP {
	return &HTTP{auth: auth}
}

// Name implements Protocol.
func (h *HTTP) Name() Kind { return KindHTTP }

const maxSniffBuf = 64 * 1024

// ResolveDestAddr implements Protocol.
func (h *HTTP) ResolveDestAddr(sock Socket) (ResolvedResult, error) {
	var buf []byte
	for {
		chunk, err := sock.ReadSome()
		if err != nil {
			return ResolvedResult{}, err
		}
		buf = append(buf, chunk...)
		if len(buf) > maxSniffBuf {
			return ResolvedResult{}, cerrors.NewProbeFailed("http", errRequestTooLarge)
		}

		req, consumed, ok, err := tryParseRequest(buf)
		if err != nil {
			return ResolvedResult{}, cerrors.NewProbeFailed("http", err)
		}
		if !ok {
			continue
		}

		if h.auth != nil && !h.auth.matches(req) {
			_ = sock.Send([]byte("HTTP/1.1 407 Proxy Authentication Required\r\nProxy-Authenticate: Basic\r\n\r\n"))
			return ResolvedResult{}, cerrors.NewProbeFailed("http", errAuthFailed)
		}

		if strings.EqualFold(req.Method, "CONNECT") {
			addr, err := address.FromHostPort(req.URL.Host, 443)
			if err != nil {
				return ResolvedResult{}, cerrors.NewProbeFailed("http", err)
			}
			if err := sock.Send([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
				return ResolvedResult{}, err
			}
			return ResolvedResult{Destination: addr, Kind: KindHTTPProxy}, nil
		}

		addr, err := resolveHTTPDest(req)
		if err != nil {
			return ResolvedResult{}, cerrors.NewProbeFailed("http", err)
		}
		return ResolvedResult{Destination: addr, Kind: KindHTTP, PendingBuf: buf[:consumed]}, nil
	}
}

// tryParseRequest attempts to parse a complete HTTP request line + headers
// from buf. ok is false when more bytes are needed.
func tryParseRequest(buf []byte) (req *http.Request, consumed int, ok bool, err error) {
	idx := bytes.Index(buf, []byte("\r\n\r\n"))
	if idx < 0 {
		return nil, 0, false, nil
	}
	headEnd := idx + 4

	r, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(buf[:headEnd])))
	if err != nil {
		return nil, 0, false, err
	}
	return r, headEnd, true, nil
}

func resolveHTTPDest(req *http.Request) (address.Addr, error) {
	if req.URL.IsAbs() && req.URL.Host != "" {
		return address.FromHostPort(req.URL.Host, 80)
	}

	host := req.Header.Get("Host")
	if host == "" {
		return address.Addr{}, errNoHostHeader
	}
	return address.FromHostPort(host, 80)
}

var (
	errRequestTooLarge = sentinelError("http: request line too large without becoming complete")
	errAuthFailed      = sentinelError("http: proxy authentication failed")
	errNoHostHeader    = sentinelError("http: no absolute URI and no Host header")
)
