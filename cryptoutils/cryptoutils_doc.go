// Package cryptoutils provides the cryptographic primitives shared by the
// signing and provisioning components.
//
// The package covers:
//
// - RSA 2048 key generation and PEM encoding in PKCS#8 / PKIX form
// - Self-signed X.509 certificate creation for hardware token slots
// - PKCS#1 v1.5 SHA-256 signature verification
// - Passphrase-sealed private key files using Argon2id and AES-GCM
//
// Hardware tokens only accept RSA 2048 for import in this system, so the
// helpers are deliberately RSA-only. Sealed key files use Argon2id with a
// random salt and a random GCM nonce; both are stored alongside the
// ciphertext so a file is self-contained.
package cryptoutils
