package tlsroots

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// selfSigned returns a PEM certificate and key for cn that expires at notAfter.
func selfSigned(t *testing.T, cn string, notAfter time.Time) (certPEM, keyPEM []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func writePair(t *testing.T, certFile, keyFile, cn string, notAfter time.Time) {
	t.Helper()
	certPEM, keyPEM := selfSigned(t, cn, notAfter)
	if err := os.WriteFile(certFile, certPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestPool_AddCertPEM(t *testing.T) {
	pool, err := NewPool()
	if err != nil {
		t.Fatal(err)
	}

	a, keyA := selfSigned(t, "ca-a", time.Now().Add(time.Hour))
	b, _ := selfSigned(t, "ca-b", time.Now().Add(time.Hour))
	bundle := append(append(append([]byte{}, a...), keyA...), b...)

	if err := pool.AddCertPEM(bundle); err != nil {
		t.Fatalf("AddCertPEM() error = %v", err)
	}
	if pool.Added() != 2 {
		t.Errorf("Added() = %d, want 2 (the key block is skipped)", pool.Added())
	}
}

func TestPool_AddCertPEM_Errors(t *testing.T) {
	pool, _ := NewPool()

	if err := pool.AddCertPEM([]byte("not pem")); !errors.Is(err, ErrNoCertsFound) {
		t.Errorf("garbage: error = %v, want ErrNoCertsFound", err)
	}

	_, key := selfSigned(t, "ca", time.Now().Add(time.Hour))
	if err := pool.AddCertPEM(key); !errors.Is(err, ErrNoCertsFound) {
		t.Errorf("key only: error = %v, want ErrNoCertsFound", err)
	}

	broken := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("junk")})
	if err := pool.AddCertPEM(broken); err == nil || errors.Is(err, ErrNoCertsFound) {
		t.Errorf("broken DER: error = %v, want a parse error", err)
	}
	if pool.Added() != 0 {
		t.Errorf("Added() = %d after failures", pool.Added())
	}
}

func TestPool_AddCertFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ca.pem")
	certPEM, _ := selfSigned(t, "ca", time.Now().Add(time.Hour))
	if err := os.WriteFile(path, certPEM, 0o600); err != nil {
		t.Fatal(err)
	}

	pool, _ := NewPool()
	if err := pool.AddCertFile(path); err != nil {
		t.Fatalf("AddCertFile() error = %v", err)
	}
	if pool.Added() != 1 {
		t.Errorf("Added() = %d", pool.Added())
	}

	if err := pool.AddCertFile(filepath.Join(dir, "missing.pem")); err == nil {
		t.Error("missing file: expected error")
	}

	empty := filepath.Join(dir, "empty.pem")
	os.WriteFile(empty, nil, 0o600)
	if err := pool.AddCertFile(empty); !errors.Is(err, ErrNoCertsFound) {
		t.Errorf("empty file: error = %v", err)
	}
}

func TestPool_TLSConfig(t *testing.T) {
	pool, _ := NewPool()
	cfg := pool.TLSConfig()
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x", cfg.MinVersion)
	}
	if cfg.RootCAs == nil {
		t.Error("RootCAs is nil")
	}
}
