package interfaces

import (
	"context"
	"errors"
	"fmt"
)

// RoleName identifies a logical metadata signing role, e.g. "root" or
// "targets".
type RoleName string

// SignerRegistry answers whether a public key is an authorized signer for a
// metadata role. The registry implementation reads the repository's own
// signed role metadata; mocks are used in tests.
type SignerRegistry interface {
	// IsAuthorizedSigner reports whether the PEM-encoded public key is
	// declared as a signing key for the role.
	IsAuthorizedSigner(ctx context.Context, role RoleName, pubKeyPEM []byte) (bool, error)
}

var (
	// ErrNoEligibleToken is returned by the discovery loop when no inserted
	// token satisfies the request and the caller disabled retrying. It is a
	// not-found result, not a hard failure.
	ErrNoEligibleToken = errors.New("no eligible hardware token found")

	// ErrRoleMismatch indicates a token whose key is not an authorized
	// signer for the requested role. The discovery loop recovers from it by
	// trying the next candidate.
	ErrRoleMismatch = errors.New("token key is not an authorized signer for role")

	// ErrPINLockedOut is returned when the hardware reports zero PIN retries
	// remaining. It is fatal: the token must be unblocked or re-provisioned.
	ErrPINLockedOut = errors.New("no PIN retries left, token locked")

	// ErrPINEntryCanceled is returned when the user declines to retry after
	// a wrong PIN.
	ErrPINEntryCanceled = errors.New("PIN entry canceled")

	// ErrNoAvailableSlot is returned during provisioning when every
	// candidate key slot already holds a certificate.
	ErrNoAvailableSlot = errors.New("no available key slot on token")

	// ErrSigningFailed wraps failures of the signing operation itself, as
	// opposed to PIN verification or transport failures.
	ErrSigningFailed = errors.New("token signing operation failed")
)

// InvalidPINError reports a failed PIN verification together with the retry
// count the hardware reported. Remaining == 0 never reaches callers as an
// InvalidPINError; it is converted to ErrPINLockedOut.
type InvalidPINError struct {
	Remaining int
}

func (e *InvalidPINError) Error() string {
	return fmt.Sprintf("invalid PIN, %d retries left", e.Remaining)
}

// TransportError is the uniform wrapper for hardware transport failures.
// Every error crossing the token transport boundary that is not already one
// of this package's typed errors is wrapped into a TransportError, so callers
// can distinguish "token missing or gone away" from logic errors.
type TransportError struct {
	// Op names the transport operation that failed, e.g. "verify pin".
	Op string

	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("hardware transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
