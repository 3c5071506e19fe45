package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/corridorproxy/corridor/internal/conn"
	"github.com/corridorproxy/corridor/internal/config"
	"github.com/corridorproxy/corridor/internal/constants"
	cerrors "github.com/corridorproxy/corridor/internal/errors"
	"github.com/corridorproxy/corridor/internal/logging"
	"github.com/corridorproxy/corridor/internal/service"
	"github.com/corridorproxy/corridor/internal/tlsconfig"
)

// quicALPN is the ALPN protocol name QUIC requires for negotiation; must
// match the client's quictransport.InitClientConfig.
const quicALPN = "corridor"

func newServerCmd() *cobra.Command {
	cfg := &config.Config{}
	var configPath string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run a tunnel-terminating server instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), cfg, configPath)
		},
	}

	bindCommonFlags(cmd, cfg, &configPath)
	return cmd
}

func runServer(ctx context.Context, cli *config.Config, configPath string) error {
	cfg, err := loadAndMerge(cli, configPath)
	if err != nil {
		return err
	}
	daemonCleanup, err := daemonizeIfRequested(cfg, "server")
	if err != nil {
		return err
	}
	defer daemonCleanup()

	if err := logging.Init(cfg.LogLevel, !cfg.Daemonize); err != nil {
		return cerrors.NewArgumentError("--log-level: " + err.Error())
	}

	built, err := config.Build(cfg, config.RoleServer)
	if err != nil {
		return err
	}
	defer built.Monitor.Close()

	listener, err := serverListener(cfg)
	if err != nil {
		return err
	}

	shutdown := make(chan struct{})
	accepted := make(chan service.Accepted, constants.ListenerSpawnChannelCap)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go conn.Spawn(runCtx, built.Options, accepted, shutdown)

	errs := make(chan error, 1)
	go func() { errs <- listener.Start(cfg.Bind, accepted, shutdown) }()

	log.Info().Str("bind", cfg.Bind).Bool("tls", cfg.TLS).Bool("quic", cfg.QUIC).Msg("server listening")

	return waitForShutdown(shutdown, errs, func() {})
}

// serverListener picks the tunnel transport listener named by --tls/--quic,
// defaulting to a plain TCP listener.
func serverListener(cfg *config.Config) (service.Listener, error) {
	switch {
	case cfg.QUIC:
		tlsCfg, err := tlsconfig.NewServerConfig(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, err
		}
		tlsCfg.NextProtos = []string{quicALPN}
		return &service.QUIC{TLSConfig: tlsCfg, MaxConcurrency: cfg.QUICMaxConcurrency}, nil
	case cfg.TLS:
		tlsCfg, err := tlsconfig.NewServerConfig(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, err
		}
		return &service.TLS{Config: tlsCfg}, nil
	default:
		return &service.TCP{}, nil
	}
}
