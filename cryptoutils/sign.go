package cryptoutils

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// SignPKCS1v15 signs data with RSA PKCS#1 v1.5 over a SHA-256 digest. This
// is the software twin of what hardware tokens compute on-device, used by
// file and Vault key sources.
func SignPKCS1v15(priv *rsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}

// VerifyPKCS1v15 checks an RSA PKCS#1 v1.5 SHA-256 signature.
func VerifyPKCS1v15(pub *rsa.PublicKey, data, sig []byte) error {
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}
