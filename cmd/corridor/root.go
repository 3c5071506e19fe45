package main

import (
	"github.com/spf13/cobra"

	"github.com/corridorproxy/corridor/internal/config"
	"github.com/corridorproxy/corridor/internal/constants"
	cerrors "github.com/corridorproxy/corridor/internal/errors"
	"github.com/corridorproxy/corridor/internal/rundir"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "corridor",
		Short:         "Dual-mode TCP/UDP tunneling proxy",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newClientCmd())
	root.AddCommand(newServerCmd())
	root.AddCommand(newGenerateCmd())
	root.AddCommand(newTestCmd())
	return root
}

// exitCodeFromCause maps a structured *errors.Error to the process's exit
// codes; anything else (cobra usage errors) is reported by the caller as
// an argument error.
func exitCodeFromCause(err error) (int, bool) {
	switch cerrors.Type(err) {
	case cerrors.ErrorTypeArgument:
		return constants.ExitArgumentError, true
	case cerrors.ErrorTypeBootstrap:
		return constants.ExitRuntimeBootstrap, true
	default:
		return 0, false
	}
}

// bindCommonFlags registers the flags shared by the client and server
// subcommands, binding them directly into cfg.
func bindCommonFlags(cmd *cobra.Command, cfg *config.Config, configPath *string) {
	flags := cmd.Flags()
	flags.StringVar(configPath, "config", "", "load settings from a JSON or YAML config file")
	flags.StringVar(&cfg.Bind, "bind", "", "local listen address (default depends on role)")
	flags.StringVar(&cfg.Key, "key", "", "shared tunnel key (required when a tunnel peer is configured)")
	flags.StringVar(&cfg.Encryption, "encryption", "", "tunnel codec: plain or erp (default erp)")
	flags.StringVar(&cfg.DNSServer, "dns-server", "", "upstream DNS resolver (default 8.8.8.8:53)")
	flags.BoolVar(&cfg.TLS, "tls", false, "use TLS for the tunnel transport")
	flags.BoolVar(&cfg.QUIC, "quic", false, "use QUIC for the tunnel transport")
	flags.StringVar(&cfg.TLSCert, "tls-cert", "", "TLS/QUIC certificate (server) or CA certificate (client)")
	flags.StringVar(&cfg.TLSKey, "tls-key", "", "TLS/QUIC private key (server role only)")
	flags.Uint16Var(&cfg.QUICMaxConcurrency, "quic-max-concurrency", 0, "QUIC max concurrent streams (0: library default)")
	flags.StringVar(&cfg.Monitor, "monitor", "", "telemetry collector address (host:port), disabled when empty")
	flags.StringVar(&cfg.LogLevel, "log-level", "", "trace|debug|info|warn|error (default info)")
	flags.BoolVar(&cfg.Daemonize, "daemonize", false, "redirect stdout/stderr to ~/.corridor/run and write a PID file")
}

// loadAndMerge layers cli (the parsed flags) over the --config file, when
// one was given, so explicit flags always win over the file.
func loadAndMerge(cli *config.Config, configPath string) (*config.Config, error) {
	if configPath == "" {
		return cli, nil
	}
	fileCfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	return config.Merge(cli, fileCfg), nil
}

// daemonizeIfRequested redirects stdio and writes a PID file under
// ~/.corridor/run when --daemonize is set, returning a cleanup
// that removes the PID file on shutdown. name distinguishes the client and
// server instance's files from one another.
func daemonizeIfRequested(cfg *config.Config, name string) (func(), error) {
	if !cfg.Daemonize {
		return func() {}, nil
	}
	if err := rundir.RedirectStdio(name); err != nil {
		return nil, err
	}
	pidPath, err := rundir.WritePIDFile(name)
	if err != nil {
		return nil, err
	}
	return func() { rundir.RemovePIDFile(pidPath) }, nil
}
