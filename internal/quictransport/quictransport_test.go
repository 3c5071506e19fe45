package quictransport

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestListenFailsWithoutServerConfig(t *testing.T) {
	serverConfig.Store(nil)
	if _, err := Listen("127.0.0.1:0"); err == nil {
		t.Fatal("expected error when server config was never initialized")
	}
}

func TestDialFailsWithoutClientConfig(t *testing.T) {
	clientConfig.Store(nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	if _, err := Dial(ctx, "127.0.0.1:1"); err == nil {
		t.Fatal("expected error when client config was never initialized")
	}
}

func TestInitClientConfigRejectsBadCA(t *testing.T) {
	path := t.TempDir() + "/ca.pem"
	if err := os.WriteFile(path, []byte("not a certificate"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := InitClientConfig(path); err == nil {
		t.Fatal("expected error for malformed CA certificate")
	}
}
