package hsm

import (
	"crypto/rsa"
	"crypto/x509"
	"errors"

	"github.com/signet-labs/authrepo-signing-backend/interfaces"
)

// Factory defaults of the PIV applet.
const (
	DefaultPIN = "123456"
	DefaultPUK = "12345678"
)

// ManagementKeyLen is the length of a PIV management key in bytes.
const ManagementKeyLen = 24

// DefaultManagementKey is the factory-default PIV management key.
var DefaultManagementKey = []byte{
	0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
}

// Slot identifies a PIV key slot.
type Slot struct {
	Key  uint32
	Name string
}

func (s Slot) String() string { return s.Name }

// The PIV slots usable for signing keys.
var (
	SlotSignature          = Slot{Key: 0x9c, Name: "signature"}
	SlotAuthentication     = Slot{Key: 0x9a, Name: "authentication"}
	SlotKeyManagement      = Slot{Key: 0x9d, Name: "key-management"}
	SlotCardAuthentication = Slot{Key: 0x9e, Name: "card-authentication"}
)

// SlotPriority is the order provisioning searches for a free slot.
var SlotPriority = []Slot{SlotSignature, SlotAuthentication, SlotKeyManagement, SlotCardAuthentication}

// ParseSlot converts a slot name or hex id to a Slot.
func ParseSlot(s string) (Slot, error) {
	for _, slot := range SlotPriority {
		if s == slot.Name {
			return slot, nil
		}
	}
	switch s {
	case "9a":
		return SlotAuthentication, nil
	case "9c":
		return SlotSignature, nil
	case "9d":
		return SlotKeyManagement, nil
	case "9e":
		return SlotCardAuthentication, nil
	}
	return Slot{}, errors.New("unsupported slot " + s + " (use 9a, 9c, 9d, or 9e)")
}

var (
	// ErrSlotEmpty is returned by Token.Certificate when the slot holds no
	// certificate. Provisioning uses it to find a free slot.
	ErrSlotEmpty = errors.New("slot holds no certificate")

	// ErrRetryConfigUnsupported is returned by transports that cannot
	// change the PIN/PUK retry counters. Provisioning logs and continues.
	ErrRetryConfigUnsupported = errors.New("pin retry configuration not supported by this transport")
)

// Transport enumerates inserted hardware tokens.
type Transport interface {
	// Tokens opens a connection to every inserted token. The caller owns
	// the returned connections and must Close each one.
	Tokens() ([]Token, error)
}

// Token is one open smart-card connection to a hardware token's PIV
// applet.
//
// Error contract: VerifyPIN returns *interfaces.InvalidPINError for a
// wrong PIN with retries left and interfaces.ErrPINLockedOut when none
// remain. Certificate returns ErrSlotEmpty for a slot without a
// certificate. Everything else that goes wrong surfaces as an
// *interfaces.TransportError.
type Token interface {
	Serial() (uint32, error)
	Version() string

	PINRetries() (int, error)
	VerifyPIN(pin string) error

	Certificate(slot Slot) (*x509.Certificate, error)

	// Sign computes an RSASSA-PKCS1v15 SHA-256 signature on-device. The
	// PIN is required on every use; keys are injected with a PIN-always
	// policy.
	Sign(slot Slot, pub *rsa.PublicKey, pin string, data []byte) ([]byte, error)

	// Provisioning operations.
	Reset() error
	SetManagementKey(oldKey, newKey []byte) error
	SetPIN(oldPIN, newPIN string) error
	SetPUK(oldPUK, newPUK string) error
	SetPINRetries(managementKey []byte, pin string, pinRetries, pukRetries int) error
	GenerateKey(managementKey []byte, slot Slot) (*rsa.PublicKey, error)
	ImportKey(managementKey []byte, slot Slot, priv *rsa.PrivateKey) error
	SetCertificate(managementKey []byte, slot Slot, cert *x509.Certificate) error

	Close() error
}

// wrapErr applies the transport error boundary: typed errors pass through
// untouched, anything else becomes a TransportError for the given
// operation.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var invalidPIN *interfaces.InvalidPINError
	var transport *interfaces.TransportError
	if errors.As(err, &invalidPIN) || errors.As(err, &transport) ||
		errors.Is(err, interfaces.ErrPINLockedOut) ||
		errors.Is(err, ErrSlotEmpty) ||
		errors.Is(err, ErrRetryConfigUnsupported) {
		return err
	}
	return &interfaces.TransportError{Op: op, Err: err}
}
