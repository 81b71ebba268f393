package daraja

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// LoadCertificate reads the rail's public-key certificate from disk. Called
// once at startup; the raw initiator password never leaves the process.
func LoadCertificate(path string) (*rsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("certificate is not PEM encoded")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	rsaPub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("certificate does not carry an RSA public key")
	}

	return rsaPub, nil
}

// securityCredential encrypts the initiator password with the rail's public
// key (PKCS#1 v1.5) and base64-encodes the result.
func securityCredential(pub *rsa.PublicKey, password string) (string, error) {
	if pub == nil {
		return "", errors.New("reversal certificate is not loaded")
	}

	encrypted, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(password))
	if err != nil {
		return "", fmt.Errorf("encrypt security credential: %w", err)
	}

	return base64.StdEncoding.EncodeToString(encrypted), nil
}
