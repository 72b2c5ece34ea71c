// Package keysource loads RSA private key material for token
// provisioning.
//
// Two sources are supported: local PEM files, optionally sealed with a
// passphrase, and HashiCorp Vault KV v2 secrets. Provisioning treats both
// the same way; it receives a parsed key and never learns where it came
// from.
package keysource
