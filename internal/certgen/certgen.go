// Package certgen creates the self-signed certificate chain Janus uses
// for LAN deployments: an Ed25519 CA and a leaf certificate signed by
// it, both PEM-encoded, valid for a thousand years so operators never
// have to think about renewal on a tool meant to run unattended.
package certgen

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

// CommonName is the fixed subject every generated certificate carries.
// Hostname verification is disabled on the transport side (spec.md §6),
// so the name itself is cosmetic.
const CommonName = "JanusSync"

const validityYears = 1000

// Bundle holds the PEM-encoded CA certificate plus one leaf certificate
// and its private key, ready to hand to tls.X509KeyPair or a cert pool.
type Bundle struct {
	CACertPEM   []byte
	LeafCertPEM []byte
	LeafKeyPEM  []byte
}

// Generate produces a fresh CA and one leaf certificate signed by it.
func Generate() (Bundle, error) {
	caPub, caPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Bundle{}, fmt.Errorf("certgen: generate CA key: %w", err)
	}
	caSerial, err := randomSerial()
	if err != nil {
		return Bundle{}, err
	}
	now := time.Now()
	caTemplate := &x509.Certificate{
		SerialNumber:          caSerial,
		Subject:               pkix.Name{CommonName: CommonName},
		NotBefore:             now,
		NotAfter:              now.AddDate(validityYears, 0, 0),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, caPub, caPriv)
	if err != nil {
		return Bundle{}, fmt.Errorf("certgen: create CA certificate: %w", err)
	}

	leafPub, leafPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Bundle{}, fmt.Errorf("certgen: generate leaf key: %w", err)
	}
	leafSerial, err := randomSerial()
	if err != nil {
		return Bundle{}, err
	}
	leafTemplate := &x509.Certificate{
		SerialNumber: leafSerial,
		Subject:      pkix.Name{CommonName: CommonName},
		NotBefore:    now,
		NotAfter:     now.AddDate(validityYears, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, caTemplate, leafPub, caPriv)
	if err != nil {
		return Bundle{}, fmt.Errorf("certgen: create leaf certificate: %w", err)
	}

	leafKeyDER, err := x509.MarshalPKCS8PrivateKey(leafPriv)
	if err != nil {
		return Bundle{}, fmt.Errorf("certgen: marshal leaf key: %w", err)
	}

	return Bundle{
		CACertPEM:   encodePEM("CERTIFICATE", caDER),
		LeafCertPEM: encodePEM("CERTIFICATE", leafDER),
		LeafKeyPEM:  encodePEM("PRIVATE KEY", leafKeyDER),
	}, nil
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("certgen: generate serial: %w", err)
	}
	return serial, nil
}

func encodePEM(blockType string, der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
}
