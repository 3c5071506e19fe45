package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/corridorproxy/corridor/internal/buffer"
	"github.com/corridorproxy/corridor/internal/conn"
	"github.com/corridorproxy/corridor/internal/config"
	cerrors "github.com/corridorproxy/corridor/internal/errors"
	"github.com/corridorproxy/corridor/internal/logging"
	"github.com/corridorproxy/corridor/internal/service"
	"github.com/corridorproxy/corridor/internal/timing"
)

// newTestCmd implements the smoke-test subcommand: spin up a
// transient, in-process client instance pinned at one destination and
// drive a single raw HTTP request through it, reporting per-stage timing
// and response size the way a human operator would sanity-check a fresh
// deployment before pointing real traffic at it.
func newTestCmd() *cobra.Command {
	cfg := &config.Config{}
	var (
		configPath string
		target     string
	)

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Smoke-test a client configuration against one HTTP destination",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				return cerrors.NewArgumentError("--http is required")
			}
			return runTest(cmd.Context(), cfg, configPath, target)
		},
	}

	bindCommonFlags(cmd, cfg, &configPath)
	flags := cmd.Flags()
	flags.StringVar(&cfg.ServerBind, "server-bind", "", "tunnel peer address (host:port); empty relays direct")
	flags.StringVar(&target, "http", "", "destination host:port to fetch '/' from through the proxy")

	return cmd
}

func runTest(ctx context.Context, cli *config.Config, configPath, target string) error {
	cfg, err := loadAndMerge(cli, configPath)
	if err != nil {
		return err
	}
	cfg.PinDestAddr = target
	cfg.Bind = "127.0.0.1:0"
	if err := logging.Init(cfg.LogLevel, true); err != nil {
		return cerrors.NewArgumentError("--log-level: " + err.Error())
	}

	built, err := config.Build(cfg, config.RoleClient)
	if err != nil {
		return err
	}
	defer built.Monitor.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return cerrors.NewBootstrapError("test_listen", err)
	}
	defer ln.Close()

	shutdown := make(chan struct{})
	defer close(shutdown)
	accepted := make(chan service.Accepted, 1)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go conn.Spawn(runCtx, built.Options, accepted, shutdown)
	go acceptOne(ln, accepted, shutdown)

	timer := timing.NewTimer()
	timer.StartTCP()
	appConn, err := net.DialTimeout("tcp", ln.Addr().String(), 10*time.Second)
	if err != nil {
		return cerrors.NewConnectError(ln.Addr().String(), err)
	}
	defer appConn.Close()
	timer.EndTCP()

	req := fmt.Sprintf("GET / HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", target)
	if _, err := appConn.Write([]byte(req)); err != nil {
		return cerrors.NewIOError("test_write", err)
	}

	body := buffer.New(buffer.DefaultMemoryLimit)
	defer body.Close()

	timer.StartTTFB()
	first := true
	r := bufio.NewReader(appConn)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if first {
				timer.EndTTFB()
				first = false
			}
			if _, werr := body.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if err != io.EOF {
				return cerrors.NewIOError("test_read", err)
			}
			break
		}
	}

	metrics := timer.GetMetrics()
	fmt.Printf("target:       %s\n", target)
	fmt.Printf("tcp connect:  %v\n", metrics.TCPConnect)
	fmt.Printf("ttfb:         %v\n", metrics.TTFB)
	fmt.Printf("total:        %v\n", metrics.TotalTime)
	fmt.Printf("response:     %d bytes (spilled to disk: %v)\n", body.Size(), body.IsSpilled())
	return nil
}

// acceptOne accepts connections on ln and hands each to accepted as a
// service.Accepted, the same shape service.TCP produces, until shutdown
// fires or the listener closes. Kept local to the test subcommand since it
// needs the listener's ephemeral bound address before the accept loop
// starts, which service.TCP.Start doesn't expose.
func acceptOne(ln net.Listener, accepted chan<- service.Accepted, shutdown <-chan struct{}) {
	for {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		select {
		case accepted <- service.Accepted{Conn: &testConn{Conn: c}, Kind: service.KindTCP}:
		case <-shutdown:
			c.Close()
			return
		}
	}
}

// testConn adapts a net.Conn to service.RawConn for the smoke-test
// listener, mirroring service's own (unexported) tcpConn wrapper.
type testConn struct {
	net.Conn
}

func (c *testConn) ReadSome(p []byte) (int, error) { return c.Conn.Read(p) }

func (c *testConn) Send(buf []byte) error {
	_, err := c.Conn.Write(buf)
	return err
}

func (c *testConn) RemoteAddr() string {
	if c.Conn == nil || c.Conn.RemoteAddr() == nil {
		return ""
	}
	return c.Conn.RemoteAddr().String()
}
