package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters: time=1, memory=64*1024, threads=4, keyLen=32.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32

	sealSaltLen  = 16
	sealNonceLen = 12 // standard GCM nonce size
)

// SealPrivateKey encrypts an RSA private key under a passphrase. The key is
// serialized as PKCS#8 PEM, the passphrase is stretched with Argon2id, and
// the result is sealed with AES-GCM.
//
// Format: [salt length (2 bytes)][salt][nonce][ciphertext]
func SealPrivateKey(priv *rsa.PrivateKey, passphrase []byte) ([]byte, error) {
	keyPEM, err := MarshalPrivateKeyPEM(priv)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, sealSaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	nonce := make([]byte, sealNonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aesGCM, err := sealCipher(passphrase, salt)
	if err != nil {
		return nil, err
	}

	ciphertext := aesGCM.Seal(nil, nonce, keyPEM, nil)

	result := make([]byte, 2+len(salt)+len(nonce)+len(ciphertext))
	binary.BigEndian.PutUint16(result[0:2], uint16(len(salt)))
	copy(result[2:2+len(salt)], salt)
	copy(result[2+len(salt):2+len(salt)+len(nonce)], nonce)
	copy(result[2+len(salt)+len(nonce):], ciphertext)

	return result, nil
}

// OpenPrivateKey decrypts a key file produced by SealPrivateKey.
func OpenPrivateKey(sealed []byte, passphrase []byte) (*rsa.PrivateKey, error) {
	if len(sealed) < 2 {
		return nil, errors.New("sealed key too short")
	}

	saltLen := binary.BigEndian.Uint16(sealed[0:2])
	if len(sealed) < int(2+saltLen+sealNonceLen) {
		return nil, errors.New("sealed key has invalid format")
	}

	salt := sealed[2 : 2+saltLen]
	nonce := sealed[2+saltLen : 2+saltLen+sealNonceLen]
	ciphertext := sealed[2+saltLen+sealNonceLen:]

	aesGCM, err := sealCipher(passphrase, salt)
	if err != nil {
		return nil, err
	}

	keyPEM, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt key, wrong passphrase or corrupt file: %w", err)
	}

	return ParsePrivateKeyPEM(keyPEM)
}

func sealCipher(passphrase, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
