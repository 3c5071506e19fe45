// Package monitor is the thin client side of the monitoring/telemetry side
// channel: the core only hands it short connection-lifecycle facts over
// UDP, best-effort, via --monitor <host:port>. The collector itself is out
// of scope.
package monitor

import (
	"fmt"
	"net"
	"time"
)

// Client fires best-effort UDP datagrams describing connection lifecycle
// events at the configured collector address. A nil *Client is valid and
// every method becomes a no-op, so wiring it into internal/conn.Options is
// always safe.
type Client struct {
	conn *net.UDPConn
}

// Dial resolves addr and opens the UDP socket the Client will write to.
// An empty addr disables the client (Dial returns nil, nil).
func Dial(addr string) (*Client, error) {
	if addr == "" {
		return nil, nil
	}
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Report sends one line: "<unix-ms> conn=<id> role=<role> event=<event> dest=<dest>".
// Send errors are swallowed — telemetry must never perturb the data path.
func (c *Client) Report(connID int64, role, event, dest string) {
	if c == nil || c.conn == nil {
		return
	}
	line := fmt.Sprintf("%d conn=%d role=%s event=%s dest=%s\n",
		time.Now().UnixMilli(), connID, role, event, dest)
	_, _ = c.conn.Write([]byte(line))
}

// Close releases the underlying socket.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
