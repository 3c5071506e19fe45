package conn

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/corridorproxy/corridor/internal/acl"
	"github.com/corridorproxy/corridor/internal/address"
	"github.com/corridorproxy/corridor/internal/dnsclient"
)

// echoOnceListener accepts one connection, writes body, and closes.
func echoOnceListener(t *testing.T, body string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 1024)
		_, _ = c.Read(buf)
		_, _ = c.Write([]byte(body))
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func testOptions(role Role) *Options {
	return &Options{
		Role:           role,
		Encryption:     EncryptionErp,
		ACL:            acl.New(),
		Resolver:       dnsclient.New("8.8.8.8:53"),
		DNSSniffTarget: address.Addr{Type: address.TypeV4, IP: net.ParseIP("8.8.8.8").To4(), Port: 53},
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
		IdleTimeout: 0,
		Logger:      zerolog.Nop(),
	}
}

func TestConnection_HTTPConnectDirect(t *testing.T) {
	destAddr := echoOnceListener(t, "some response text")

	appSide, proxySide := net.Pipe()
	defer appSide.Close()

	opts := testOptions(RoleClient)
	params := InboundParams{
		Transport: &tcpTransport{Conn: proxySide},
		IsTCP:     true,
	}
	c := New(opts, params)

	shutdown := make(chan struct{})
	done := make(chan struct{})
	go func() {
		c.Handle(context.Background(), shutdown)
		close(done)
	}()

	req := "CONNECT " + destAddr + " HTTP/1.1\r\nHost: " + destAddr + "\r\n\r\n"
	if _, err := appSide.Write([]byte(req)); err != nil {
		t.Fatalf("write connect: %v", err)
	}

	appSide.SetReadDeadline(time.Now().Add(3 * time.Second))
	br := bufio.NewReader(appSide)
	status, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != "HTTP/1.1 200 Connection Established\r\n" {
		t.Fatalf("unexpected status line: %q", status)
	}
	// consume the blank line terminating the CONNECT response
	if _, err := br.ReadString('\n'); err != nil {
		t.Fatalf("read blank line: %v", err)
	}

	if _, err := appSide.Write([]byte("ping")); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	body := make([]byte, len("some response text"))
	if _, err := readFull(br, body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "some response text" {
		t.Fatalf("got %q", body)
	}

	close(shutdown)
	appSide.Close()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("connection did not terminate after shutdown")
	}
}

func readFull(br *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := br.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// TestConnection_ErpTunnelRoundTrip wires a client-role Connection and a
// server-role Connection back to back over a net.Pipe standing in for the
// tunnel transport, and a real TCP listener standing in for the final
// destination — end-to-end scenario 1 of spec.md §8 without the SOCKS5
// CLI/curl layer.
func TestConnection_ErpTunnelRoundTrip(t *testing.T) {
	destAddr := echoOnceListener(t, "some response text")

	tunnelClientSide, tunnelServerSide := net.Pipe()
	appSide, proxySide := net.Pipe()
	defer appSide.Close()

	clientOpts := testOptions(RoleClient)
	clientOpts.Key = []byte("key")
	clientOpts.PeerAddr = "tunnel:0" // Dial below maps this addr to the tunnel pipe
	clientOpts.Dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		if addr == clientOpts.PeerAddr {
			return tunnelClientSide, nil
		}
		var d net.Dialer
		return d.DialContext(ctx, network, addr)
	}
	clientParams := InboundParams{Transport: &tcpTransport{Conn: proxySide}, IsTCP: true}
	clientConn := New(clientOpts, clientParams)

	serverOpts := testOptions(RoleServer)
	serverOpts.Key = []byte("key")
	serverParams := InboundParams{Transport: &tcpTransport{Conn: tunnelServerSide}, IsTCP: true}
	serverConn := New(serverOpts, serverParams)

	shutdown := make(chan struct{})
	defer close(shutdown)

	clientDone := make(chan struct{})
	serverDone := make(chan struct{})
	go func() { clientConn.Handle(context.Background(), shutdown); close(clientDone) }()
	go func() { serverConn.Handle(context.Background(), shutdown); close(serverDone) }()

	// SOCKS5 no-auth CONNECT against destAddr.
	host, portStr, err := net.SplitHostPort(destAddr)
	if err != nil {
		t.Fatalf("split dest: %v", err)
	}
	ip := net.ParseIP(host).To4()
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	appSide.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := appSide.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		t.Fatalf("write greeting: %v", err)
	}
	greetReply := make([]byte, 2)
	if _, err := readFullConn(appSide, greetReply); err != nil {
		t.Fatalf("read greeting reply: %v", err)
	}
	if greetReply[0] != 0x05 || greetReply[1] != 0x00 {
		t.Fatalf("unexpected greeting reply: %v", greetReply)
	}

	req := []byte{0x05, 0x01, 0x00, 0x01}
	req = append(req, ip...)
	req = append(req, byte(port>>8), byte(port))
	if _, err := appSide.Write(req); err != nil {
		t.Fatalf("write request: %v", err)
	}
	reqReply := make([]byte, 10)
	if _, err := readFullConn(appSide, reqReply); err != nil {
		t.Fatalf("read request reply: %v", err)
	}
	if reqReply[0] != 0x05 || reqReply[1] != 0x00 {
		t.Fatalf("unexpected request reply: %v", reqReply)
	}

	if _, err := appSide.Write([]byte("ping")); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	body := make([]byte, len("some response text"))
	if _, err := readFullConn(appSide, body); err != nil {
		t.Fatalf("read relayed body: %v", err)
	}
	if string(body) != "some response text" {
		t.Fatalf("got %q", body)
	}
}

func readFullConn(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
