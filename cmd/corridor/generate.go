package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/corridorproxy/corridor/internal/certgen"
	"github.com/corridorproxy/corridor/internal/config"
	cerrors "github.com/corridorproxy/corridor/internal/errors"
)

// newGenerateCmd implements the scaffolding subcommand: either a
// self-signed certificate/key pair, or a config-file skeleton for the
// named role.
func newGenerateCmd() *cobra.Command {
	var (
		certificate bool
		hostname    string
		certOut     string
		keyOut      string
		configType  string
		configOut   string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Scaffold a self-signed certificate or a config file skeleton",
		RunE: func(cmd *cobra.Command, args []string) error {
			if certificate {
				return certgen.Generate(hostname, certOut, keyOut)
			}
			return generateConfigSkeleton(configType, configOut)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&certificate, "certificate", false, "generate a self-signed TLS certificate/key pair")
	flags.StringVar(&hostname, "hostname", "localhost", "certificate subject/SAN hostname")
	flags.StringVar(&certOut, "cert", "corridor.crt", "certificate output path")
	flags.StringVar(&keyOut, "key-out", "corridor.key", "private key output path")
	flags.StringVar(&configType, "config-type", "client", "skeleton role: client or server")
	flags.StringVar(&configOut, "config", "corridor.json", "config skeleton output path")

	return cmd
}

func generateConfigSkeleton(configType, configOut string) error {
	var cfg config.Config
	switch configType {
	case "client":
		cfg = config.Config{
			Bind:       "127.0.0.1:1080",
			ServerBind: "example.com:3000",
			Key:        "change-me",
			Encryption: "erp",
			DNSServer:  "8.8.8.8:53",
		}
	case "server":
		cfg = config.Config{
			Bind:       "0.0.0.0:3000",
			Key:        "change-me",
			Encryption: "erp",
			DNSServer:  "8.8.8.8:53",
		}
	default:
		return cerrors.NewArgumentError("--config-type must be client or server")
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return cerrors.NewArgumentError("marshaling config skeleton: " + err.Error())
	}
	if err := os.WriteFile(configOut, data, 0o644); err != nil {
		return cerrors.NewArgumentError("writing config skeleton: " + err.Error())
	}
	return nil
}
