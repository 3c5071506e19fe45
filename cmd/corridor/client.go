package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/corridorproxy/corridor/internal/conn"
	"github.com/corridorproxy/corridor/internal/config"
	"github.com/corridorproxy/corridor/internal/constants"
	cerrors "github.com/corridorproxy/corridor/internal/errors"
	"github.com/corridorproxy/corridor/internal/logging"
	"github.com/corridorproxy/corridor/internal/pac"
	"github.com/corridorproxy/corridor/internal/service"
)

func newClientCmd() *cobra.Command {
	cfg := &config.Config{}
	var configPath string

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Run a local client instance (SOCKS5/HTTP/TLS-SNI/DNS ingress)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context(), cfg, configPath)
		},
	}

	bindCommonFlags(cmd, cfg, &configPath)
	flags := cmd.Flags()
	flags.StringVar(&cfg.ServerBind, "server-bind", "", "tunnel peer address (host:port); empty relays direct")
	flags.StringVar(&cfg.ACLFile, "acl", "", "ACL rule file gating tunnel vs. direct relay")
	flags.BoolVar(&cfg.UDPOverTCP, "udp-over-tcp", false, "carry UDP payloads over the tunnel transport")
	flags.StringVar(&cfg.PinDestAddr, "pin-dest-addr", "", "skip protocol sniffing, always relay to this address")
	flags.StringVar(&cfg.PACBind, "pac-bind", "", "serve a PAC script reflecting --acl at this address")
	flags.StringVar(&cfg.PACProxy, "pac-proxy", "", "proxy address the PAC script hands out (defaults to --bind)")
	flags.StringVar(&cfg.WithBasicAuth, "with-basic-auth", "", "require user:pass Basic auth on the local HTTP endpoint")

	return cmd
}

func runClient(ctx context.Context, cli *config.Config, configPath string) error {
	cfg, err := loadAndMerge(cli, configPath)
	if err != nil {
		return err
	}
	daemonCleanup, err := daemonizeIfRequested(cfg, "client")
	if err != nil {
		return err
	}
	defer daemonCleanup()

	if err := logging.Init(cfg.LogLevel, !cfg.Daemonize); err != nil {
		return cerrors.NewArgumentError("--log-level: " + err.Error())
	}

	built, err := config.Build(cfg, config.RoleClient)
	if err != nil {
		return err
	}
	defer built.Monitor.Close()

	shutdown := make(chan struct{})
	accepted := make(chan service.Accepted, constants.ListenerSpawnChannelCap)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go conn.Spawn(runCtx, built.Options, accepted, shutdown)

	errs := make(chan error, 4)
	go func() { errs <- (&service.TCP{}).Start(cfg.Bind, accepted, shutdown) }()
	go func() { errs <- (&service.UDP{}).Start(cfg.Bind, accepted, shutdown) }()

	var pacServer *http.Server
	if cfg.PACBind != "" {
		pacServer = startPACServer(cfg, built, errs)
	}

	log.Info().Str("bind", cfg.Bind).Str("peer", cfg.ServerBind).Msg("client listening")

	return waitForShutdown(shutdown, errs, func() {
		if pacServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownDrain)
			defer cancel()
			_ = pacServer.Shutdown(ctx)
		}
	})
}

// startPACServer serves FindProxyForURL at --pac-bind, re-rendered from the
// live ACL table on every request so hot-reloaded rules (internal/acl.Watch)
// are reflected immediately.
func startPACServer(cfg *config.Config, built *config.Built, errs chan<- error) *http.Server {
	proxyAddr := cfg.PACProxy
	if proxyAddr == "" {
		proxyAddr = cfg.Bind
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/proxy.pac", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ns-proxy-autoconfig")
		_, _ = w.Write([]byte(pac.Generate(built.ACL.Rules(), proxyAddr)))
	})

	srv := &http.Server{Addr: cfg.PACBind, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- cerrors.NewBootstrapError("pac_listen", err)
		}
	}()
	return srv
}

// waitForShutdown blocks until a listener reports a fatal error or the
// process receives SIGINT/SIGTERM, then signals shutdown and runs cleanup.
func waitForShutdown(shutdown chan struct{}, errs <-chan error, cleanup func()) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errs:
		close(shutdown)
		cleanup()
		return err
	case <-sig:
		log.Info().Msg("shutdown signal received")
		close(shutdown)
		cleanup()
		time.Sleep(constants.ShutdownDrain)
		return nil
	}
}
