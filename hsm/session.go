package hsm

import (
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"

	"github.com/signet-labs/authrepo-signing-backend/cryptoutils"
	"github.com/signet-labs/authrepo-signing-backend/interfaces"
)

// Session wraps one open token connection for the duration of a single
// logical operation. It is released with Close on every exit path and is
// never retained across an interactive pause.
type Session struct {
	token Token
	log   *slog.Logger
}

// NewSession wraps an open token connection.
func NewSession(token Token, log *slog.Logger) *Session {
	return &Session{token: token, log: log}
}

// Serial returns the token's serial number.
func (s *Session) Serial() (uint32, error) {
	return s.token.Serial()
}

// PINRetries returns the remaining PIN attempts the hardware reports.
func (s *Session) PINRetries() (int, error) {
	return s.token.PINRetries()
}

// VerifyPIN checks a PIN against the token. A wrong PIN surfaces as an
// *interfaces.InvalidPINError carrying the hardware's remaining retry
// count; zero remaining attempts surfaces as interfaces.ErrPINLockedOut.
func (s *Session) VerifyPIN(pin string) error {
	err := s.token.VerifyPIN(pin)
	if err == nil {
		return nil
	}

	var invalidPIN *interfaces.InvalidPINError
	if errors.As(err, &invalidPIN) || errors.Is(err, interfaces.ErrPINLockedOut) {
		return err
	}

	// Some transports report a wrong PIN without a retry count. Query the
	// counter; if that works, the token is present and the failure was the
	// PIN itself.
	remaining, retriesErr := s.token.PINRetries()
	if retriesErr != nil {
		return err
	}
	if remaining == 0 {
		return interfaces.ErrPINLockedOut
	}
	return &interfaces.InvalidPINError{Remaining: remaining}
}

// Certificate returns the certificate stored in a slot.
func (s *Session) Certificate(slot Slot) (*x509.Certificate, error) {
	return s.token.Certificate(slot)
}

// PublicKey returns the RSA public key bound by a slot's certificate.
func (s *Session) PublicKey(slot Slot) (*rsa.PublicKey, error) {
	cert, err := s.token.Certificate(slot)
	if err != nil {
		return nil, err
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("slot %s does not hold an RSA key (got %T)", slot, cert.PublicKey)
	}
	return pub, nil
}

// PublicKeyPEM returns the slot's public key as PKIX PEM.
func (s *Session) PublicKeyPEM(slot Slot) ([]byte, error) {
	pub, err := s.PublicKey(slot)
	if err != nil {
		return nil, err
	}
	return cryptoutils.MarshalPublicKeyPEM(pub)
}

// Sign verifies the PIN and produces an RSASSA-PKCS1v15 SHA-256 signature
// over data with the slot's key. PIN failures surface distinctly from
// transport and signing failures.
func (s *Session) Sign(slot Slot, pin string, data []byte) ([]byte, error) {
	if err := s.VerifyPIN(pin); err != nil {
		return nil, err
	}

	pub, err := s.PublicKey(slot)
	if err != nil {
		return nil, err
	}

	sig, err := s.token.Sign(slot, pub, pin, data)
	if err != nil {
		return nil, err
	}

	serial, serialErr := s.token.Serial()
	if serialErr == nil {
		s.log.Debug("Produced hardware signature",
			slog.Uint64("serial", uint64(serial)),
			slog.String("slot", slot.Name),
			slog.Int("payload_size", len(data)))
	}
	return sig, nil
}

// Close releases the token connection.
func (s *Session) Close() error {
	return s.token.Close()
}
