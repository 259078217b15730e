package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ErrNoCertsFound is returned when PEM data holds no CERTIFICATE block.
var ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM data")

// Pool is the set of roots the CLI trusts when talking to an HTTPS server.
type Pool struct {
	certs *x509.CertPool
	added int
}

// NewPool returns a pool seeded with the system roots. Platforms without a
// system pool start empty.
func NewPool() (*Pool, error) {
	certs, err := x509.SystemCertPool()
	if err != nil || certs == nil {
		certs = x509.NewCertPool()
	}
	return &Pool{certs: certs}, nil
}

// AddCertFile adds every certificate in a PEM bundle.
func (p *Pool) AddCertFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tlsroots: read CA bundle %s: %w", path, err)
	}
	if err := p.AddCertPEM(data); err != nil {
		return fmt.Errorf("%w (%s)", err, path)
	}
	return nil
}

// AddCertPEM adds the CERTIFICATE blocks of data. Other block types, such
// as a private key left in the bundle, are skipped.
func (p *Pool) AddCertPEM(data []byte) error {
	n := 0
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		p.certs.AddCert(cert)
		n++
	}
	if n == 0 {
		return ErrNoCertsFound
	}
	p.added += n
	return nil
}

// Added is the number of certificates added on top of the system roots.
func (p *Pool) Added() int {
	return p.added
}

// TLSConfig returns a client config that verifies servers against the pool.
func (p *Pool) TLSConfig() *tls.Config {
	return &tls.Config{
		RootCAs:    p.certs,
		MinVersion: tls.VersionTLS12,
	}
}
