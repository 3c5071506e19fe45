package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidate_ServerRequiresKey(t *testing.T) {
	c := &Config{}
	c.ApplyDefaults(RoleServer)
	if err := c.Validate(RoleServer); err == nil {
		t.Fatal("expected error for missing --key on server")
	}
}

func TestValidate_ClientTunnelRequiresKey(t *testing.T) {
	c := &Config{ServerBind: "10.0.0.1:3000"}
	c.ApplyDefaults(RoleClient)
	if err := c.Validate(RoleClient); err == nil {
		t.Fatal("expected error for --server-bind without --key")
	}
}

func TestValidate_TLSAndQUICMutuallyExclusive(t *testing.T) {
	c := &Config{TLS: true, QUIC: true, TLSCert: "cert.pem"}
	c.ApplyDefaults(RoleClient)
	if err := c.Validate(RoleClient); err == nil {
		t.Fatal("expected error for --tls and --quic together")
	}
}

func TestValidate_TLSRequiresCert(t *testing.T) {
	c := &Config{TLS: true}
	c.ApplyDefaults(RoleClient)
	if err := c.Validate(RoleClient); err == nil {
		t.Fatal("expected error for --tls without --tls-cert")
	}
}

func TestValidate_ServerTLSRequiresKeyFile(t *testing.T) {
	c := &Config{Key: "k", TLS: true, TLSCert: "cert.pem"}
	c.ApplyDefaults(RoleServer)
	if err := c.Validate(RoleServer); err == nil {
		t.Fatal("expected error for server --tls without --tls-key")
	}
}

func TestValidate_UDPOverTCPRequiresServerBind(t *testing.T) {
	c := &Config{UDPOverTCP: true}
	c.ApplyDefaults(RoleClient)
	if err := c.Validate(RoleClient); err == nil {
		t.Fatal("expected error for --udp-over-tcp without --server-bind")
	}
}

func TestValidate_PACBindRequiresACL(t *testing.T) {
	c := &Config{PACBind: "127.0.0.1:8080"}
	c.ApplyDefaults(RoleClient)
	if err := c.Validate(RoleClient); err == nil {
		t.Fatal("expected error for --pac-bind without --acl")
	}
}

func TestValidate_MinimalClientOK(t *testing.T) {
	c := &Config{}
	c.ApplyDefaults(RoleClient)
	if err := c.Validate(RoleClient); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	c := &Config{}
	c.ApplyDefaults(RoleClient)
	if c.Bind == "" || c.DNSServer == "" || c.Encryption == "" {
		t.Fatal("defaults not applied")
	}
	if c.Encryption != "erp" {
		t.Fatalf("unexpected default encryption %q", c.Encryption)
	}
}

func TestLoadFile_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.json")
	body := `{"bind":"127.0.0.1:1080","server_bind":"example.com:3000","key":"secret","encryption":"erp"}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Bind != "127.0.0.1:1080" || cfg.ServerBind != "example.com:3000" || cfg.Key != "secret" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	body := "bind: 0.0.0.0:3000\nkey: secret\nencryption: plain\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Bind != "0.0.0.0:3000" || cfg.Encryption != "plain" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadFile_UnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.toml")
	if err := os.WriteFile(path, []byte("bind = 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unrecognized extension")
	}
}

func TestBuild_MinimalClient(t *testing.T) {
	c := &Config{}
	built, err := Build(c, RoleClient)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if built.Options == nil || built.Options.Role != RoleClient {
		t.Fatal("expected populated client Options")
	}
	if built.Options.Resolver == nil {
		t.Fatal("expected resolver wired")
	}
}

func TestBuild_BasicAuthParsed(t *testing.T) {
	c := &Config{WithBasicAuth: "alice:secret"}
	built, err := Build(c, RoleClient)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if built.Options.BasicAuth == nil || built.Options.BasicAuth.User != "alice" {
		t.Fatalf("expected basic auth parsed, got %+v", built.Options.BasicAuth)
	}
}

func TestBuild_BasicAuthMalformedRejected(t *testing.T) {
	c := &Config{WithBasicAuth: "no-colon-here"}
	if _, err := Build(c, RoleClient); err == nil {
		t.Fatal("expected error for malformed --with-basic-auth")
	}
}
