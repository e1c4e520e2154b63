package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
)

// CipherSuites restricts negotiation to ECDHE-(EC)DSA/RSA with AES-GCM for
// TLS 1.2 and the three TLS 1.3 AEAD suites, per spec.md §6. Go's TLS 1.3
// suite set is fixed by the standard library and always includes exactly
// those three, so only the TLS 1.2 list needs to be pinned explicitly.
var CipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
}

// MaterialSource supplies the PEM-encoded bytes a TLS context needs. The
// coordinator and node processes back this with internal/resloader (CA,
// certificate chain) and internal/kms (private key).
type MaterialSource interface {
	CACert() ([]byte, error)
	Cert() ([]byte, error)
	Key() ([]byte, error)
}

// NewServerConfig builds a mutual-TLS server *tls.Config: server
// certificate from src, client certificates required and verified against
// src's CA, per spec.md §6.
func NewServerConfig(src MaterialSource) (*tls.Config, error) {
	cert, pool, err := loadCertAndPool(src)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: CipherSuites,
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}, nil
}

// NewClientConfig builds a mutual-TLS client *tls.Config: client
// certificate from src, server certificate verified against src's CA.
func NewClientConfig(src MaterialSource) (*tls.Config, error) {
	cert, pool, err := loadCertAndPool(src)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: CipherSuites,
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
	}, nil
}

func loadCertAndPool(src MaterialSource) (tls.Certificate, *x509.CertPool, error) {
	certPEM, err := src.Cert()
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("transport: load cert: %w", err)
	}
	keyPEM, err := src.Key()
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("transport: load key: %w", err)
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("transport: parse keypair: %w", err)
	}

	caPEM, err := src.CACert()
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("transport: load CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return tls.Certificate{}, nil, fmt.Errorf("transport: no CA certificates parsed")
	}

	return cert, pool, nil
}
