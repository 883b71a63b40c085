package afip

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/digitorus/pkcs7"
)

// Signer produces a DER-encoded CMS SignedData with the content attached.
type Signer interface {
	Sign(content []byte) ([]byte, error)
}

// PKCS7Signer signs with an X.509 certificate issued by AFIP and its key.
type PKCS7Signer struct {
	cert *x509.Certificate
	key  crypto.PrivateKey
}

func NewPKCS7Signer(cert *x509.Certificate, key crypto.PrivateKey) *PKCS7Signer {
	return &PKCS7Signer{cert: cert, key: key}
}

// LoadPKCS7Signer reads a PEM certificate and a PEM private key (PKCS#1,
// PKCS#8 or SEC1) from disk.
func LoadPKCS7Signer(certPath, keyPath string) (*PKCS7Signer, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("afip: read certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("afip: read private key: %w", err)
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, errors.New("afip: certificate is not PEM encoded")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("afip: parse certificate: %w", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, errors.New("afip: private key is not PEM encoded")
	}
	key, err := parsePrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, err
	}
	return NewPKCS7Signer(cert, key), nil
}

func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch k := k.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey:
			return k, nil
		default:
			return nil, fmt.Errorf("afip: unsupported private key type %T", k)
		}
	}
	if k, err := x509.ParseECPrivateKey(der); err == nil {
		return k, nil
	}
	return nil, errors.New("afip: unrecognized private key format")
}

func (s *PKCS7Signer) Sign(content []byte) ([]byte, error) {
	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		return nil, fmt.Errorf("afip: cms init: %w", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSigner(s.cert, s.key, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("afip: cms add signer: %w", err)
	}
	der, err := sd.Finish()
	if err != nil {
		return nil, fmt.Errorf("afip: cms finish: %w", err)
	}
	return der, nil
}
