package certgen

import (
	"crypto/tls"
	"path/filepath"
	"testing"
)

func TestGenerate_LoadableKeypair(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")

	if err := Generate("127.0.0.1", certPath, keyPath); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadX509KeyPair: %v", err)
	}
	if len(cert.Certificate) == 0 {
		t.Fatal("expected at least one certificate in chain")
	}
}

func TestGenerate_DNSNameHost(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")

	if err := Generate("tunnel.example.com", certPath, keyPath); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		t.Fatalf("LoadX509KeyPair: %v", err)
	}
}
