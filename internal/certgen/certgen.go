// Package certgen scaffolds a self-signed ECDSA TLS keypair for the
// tunnel's --tls/--quic transport, backing the `generate --certificate`
// subcommand. No ecosystem cert-generation library stood out in the
// retrieval pack beyond stdlib crypto/x509 + crypto/ecdsa, so this stays on
// the standard library by design, not by default.
package certgen

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"time"

	cerrors "github.com/corridorproxy/corridor/internal/errors"
)

// ValidFor is the lifetime of a generated certificate.
const ValidFor = 365 * 24 * time.Hour

// Generate creates a self-signed ECDSA P-256 certificate for hostname
// (parsed as an IP literal or a DNS name) and writes the PEM-encoded
// certificate and private key to certPath/keyPath.
func Generate(hostname, certPath, keyPath string) error {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return cerrors.NewBootstrapError("certgen_key", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return cerrors.NewBootstrapError("certgen_serial", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: hostname, Organization: []string{"corridor"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(ValidFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	if ip := net.ParseIP(hostname); ip != nil {
		tmpl.IPAddresses = []net.IP{ip}
	} else {
		tmpl.DNSNames = []string{hostname}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		return cerrors.NewBootstrapError("certgen_create", err)
	}

	if err := writePEMFile(certPath, "CERTIFICATE", der, 0o644); err != nil {
		return err
	}

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return cerrors.NewBootstrapError("certgen_marshal_key", err)
	}
	return writePEMFile(keyPath, "EC PRIVATE KEY", keyBytes, 0o600)
}

func writePEMFile(path, blockType string, der []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return cerrors.NewBootstrapError("certgen_write", err)
	}
	defer f.Close()
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return cerrors.NewBootstrapError("certgen_write", err)
	}
	return nil
}
