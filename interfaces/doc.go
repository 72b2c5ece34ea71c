// Package interfaces defines core interfaces and types for the authentication
// repository signing backend, separating interface definitions from
// implementations.
//
// The package provides the contracts between the key components of the system:
//
// # Revision Store Interfaces
//
// RevisionStore: Read access to an authentication repository's commit history
// and to JSON documents stored at individual revisions. Implemented by the
// revstore package for GitHub, local-mirror, S3 and IPFS backends, plus a
// failover multi-store.
//
// # Signer Registry Interfaces
//
// SignerRegistry: Answers whether a public key is an authorized signer for a
// logical metadata role, based on the repository's own signed role metadata.
// Consulted by the hardware-token discovery loop before a token is accepted
// for a role.
//
// # Type Definitions
//
//   - Revision: An opaque commit identifier (40-char hex string)
//   - RoleName: A logical metadata role ("root", "targets", ...)
//
// # Error Types
//
// The package defines the typed errors shared across components. Revision
// store reads distinguish ErrUnavailableAtRevision (document absent at a
// revision) from ErrMalformedDocument (present but not valid JSON); the trail
// walker recovers from both and aborts only on other store failures. Hardware
// token operations surface InvalidPINError (with the remaining retry count),
// ErrPINLockedOut, ErrNoAvailableSlot, ErrNoEligibleToken, ErrRoleMismatch
// and the uniform TransportError wrapper.
package interfaces
