package cryptoutils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// SelfSignedRSACertificate creates a self-signed X.509 certificate for a
// key provisioned onto a hardware token slot. Subject and issuer are both
// just the common name, and validity runs from now for the given number of
// days.
func SelfSignedRSACertificate(priv *rsa.PrivateKey, commonName string, validDays int) (*x509.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: commonName,
		},
		NotBefore:          now,
		NotAfter:           now.AddDate(0, 0, validDays),
		SignatureAlgorithm: x509.SHA256WithRSA,
		KeyUsage:           x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created certificate: %w", err)
	}
	return cert, nil
}

// CertificatePEM encodes a certificate as a PEM block.
func CertificatePEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// VerifyCertificate validates that a certificate matches a given private key
// and has the expected common name. It performs the following checks:
//   - The certificate can be parsed correctly
//   - The common name matches the expected value
//   - The public key in the certificate corresponds to the provided private key
func VerifyCertificate(keyPEM, certPEM []byte, expectedCN string) error {
	privateKey, err := ParsePrivateKeyPEM(keyPEM)
	if err != nil {
		return err
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil || certBlock.Type != "CERTIFICATE" {
		return errors.New("failed to decode certificate PEM block")
	}

	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	if cert.Subject.CommonName != expectedCN {
		return fmt.Errorf("CommonName is %s, expected %s", cert.Subject.CommonName, expectedCN)
	}

	rsaCertKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return errors.New("certificate does not carry an RSA key")
	}
	if !rsaCertKey.Equal(&privateKey.PublicKey) {
		return errors.New("private key doesn't match certificate")
	}
	return nil
}

// PubkeyFingerprint returns the SHA-256 digest of a public key's PKIX PEM
// encoding, used to identify keys in logs without printing the whole PEM.
func PubkeyFingerprint(pub *rsa.PublicKey) ([]byte, error) {
	pubPEM, err := MarshalPublicKeyPEM(pub)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(pubPEM)
	return digest[:], nil
}
