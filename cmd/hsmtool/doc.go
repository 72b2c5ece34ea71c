// Package main (cmd/hsmtool) provisions and uses hardware signing tokens.
//
// Commands:
//
//	list    - enumerate inserted tokens with firmware version and occupied slots
//	setup   - provision a token from factory state: reset, fresh management
//	          key, key material with a PIN-always policy, self-signed
//	          certificate, PIN and PUK rotation
//	sign    - locate an eligible token, verify its PIN and sign a file
//	export  - write a slot's public key and certificate as PEM
//
// Setup generates fresh RSA material on the host by default; --key-file
// imports an existing key instead, accepting plain PEM or a passphrase
// sealed key file. The freshly generated management key is printed once,
// or split into escrow shares with --escrow-shares; it exists nowhere
// else afterwards.
//
// Sign can require the token's key to be an authorized signer for a
// role. The role's metadata is read from the --store mirrors, so signing
// authority is checked against the repository itself rather than local
// configuration.
//
// Example workflow:
//
//  1. Provision a fresh token and escrow its management key:
//     hsmtool setup --common-name alice@example.org --escrow-shares 3 --escrow-threshold 2
//
//  2. Sign a payload as the targets role:
//     hsmtool sign --role targets --store github://example/auth-repo --in payload.bin --out payload.sig
package main
