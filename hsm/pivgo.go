package hsm

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-piv/piv-go/v2/piv"
	"github.com/signet-labs/authrepo-signing-backend/interfaces"
)

// PIVTransport enumerates YubiKeys over PC/SC.
type PIVTransport struct {
	log *slog.Logger
}

// NewPIVTransport creates the production transport.
func NewPIVTransport(log *slog.Logger) *PIVTransport {
	return &PIVTransport{log: log}
}

// Tokens opens every reachable YubiKey reader. Readers that fail to open
// are logged and skipped; a PC/SC enumeration failure is a transport
// error.
func (t *PIVTransport) Tokens() ([]Token, error) {
	cards, err := piv.Cards()
	if err != nil {
		return nil, wrapErr("enumerate readers", err)
	}

	var tokens []Token
	for _, card := range cards {
		if !strings.Contains(strings.ToLower(card), "yubikey") {
			continue
		}
		yk, err := piv.Open(card)
		if err != nil {
			t.log.Warn("Failed to open reader",
				slog.String("reader", card),
				"err", err)
			continue
		}
		tokens = append(tokens, &pivToken{yk: yk})
	}
	return tokens, nil
}

// pivToken adapts *piv.YubiKey to the Token interface.
type pivToken struct {
	yk *piv.YubiKey
}

func pivSlot(slot Slot) (piv.Slot, error) {
	switch slot.Key {
	case SlotAuthentication.Key:
		return piv.SlotAuthentication, nil
	case SlotSignature.Key:
		return piv.SlotSignature, nil
	case SlotKeyManagement.Key:
		return piv.SlotKeyManagement, nil
	case SlotCardAuthentication.Key:
		return piv.SlotCardAuthentication, nil
	}
	return piv.Slot{}, fmt.Errorf("unsupported slot key 0x%x", slot.Key)
}

// pivKeyTemplate is the policy every signing key is injected with: RSA 2048,
// PIN required on every use, no touch requirement.
var pivKeyTemplate = piv.Key{
	Algorithm:   piv.AlgorithmRSA2048,
	PINPolicy:   piv.PINPolicyAlways,
	TouchPolicy: piv.TouchPolicyNever,
}

func (t *pivToken) Serial() (uint32, error) {
	serial, err := t.yk.Serial()
	if err != nil {
		return 0, wrapErr("read serial", err)
	}
	return serial, nil
}

func (t *pivToken) Version() string {
	v := t.yk.Version()
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (t *pivToken) PINRetries() (int, error) {
	retries, err := t.yk.Retries()
	if err != nil {
		return 0, wrapErr("read pin retries", err)
	}
	return retries, nil
}

func (t *pivToken) VerifyPIN(pin string) error {
	err := t.yk.VerifyPIN(pin)
	if err == nil {
		return nil
	}
	var authErr piv.AuthErr
	if errors.As(err, &authErr) {
		if authErr.Retries == 0 {
			return interfaces.ErrPINLockedOut
		}
		return &interfaces.InvalidPINError{Remaining: authErr.Retries}
	}
	return wrapErr("verify pin", err)
}

func (t *pivToken) Certificate(slot Slot) (*x509.Certificate, error) {
	ps, err := pivSlot(slot)
	if err != nil {
		return nil, wrapErr("get certificate", err)
	}
	cert, err := t.yk.Certificate(ps)
	if err != nil {
		// The applet reports an empty slot as a missing data object.
		if strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("slot %s: %w", slot, ErrSlotEmpty)
		}
		return nil, wrapErr("get certificate", err)
	}
	return cert, nil
}

func (t *pivToken) Sign(slot Slot, pub *rsa.PublicKey, pin string, data []byte) ([]byte, error) {
	ps, err := pivSlot(slot)
	if err != nil {
		return nil, wrapErr("sign", err)
	}

	priv, err := t.yk.PrivateKey(ps, pub, piv.KeyAuth{PIN: pin})
	if err != nil {
		return nil, wrapErr("open signing key", err)
	}
	signer, ok := priv.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: slot key does not implement crypto.Signer", interfaces.ErrSigningFailed)
	}

	digest := sha256.Sum256(data)
	sig, err := signer.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSigningFailed, err)
	}
	return sig, nil
}

func (t *pivToken) Reset() error {
	return wrapErr("factory reset", t.yk.Reset())
}

func (t *pivToken) SetManagementKey(oldKey, newKey []byte) error {
	return wrapErr("set management key", t.yk.SetManagementKey(oldKey, newKey))
}

func (t *pivToken) SetPIN(oldPIN, newPIN string) error {
	return wrapErr("change pin", t.yk.SetPIN(oldPIN, newPIN))
}

func (t *pivToken) SetPUK(oldPUK, newPUK string) error {
	return wrapErr("change puk", t.yk.SetPUK(oldPUK, newPUK))
}

// SetPINRetries is not exposed by the piv-go applet client.
func (t *pivToken) SetPINRetries(managementKey []byte, pin string, pinRetries, pukRetries int) error {
	return ErrRetryConfigUnsupported
}

func (t *pivToken) GenerateKey(managementKey []byte, slot Slot) (*rsa.PublicKey, error) {
	ps, err := pivSlot(slot)
	if err != nil {
		return nil, wrapErr("generate key", err)
	}
	pub, err := t.yk.GenerateKey(managementKey, ps, pivKeyTemplate)
	if err != nil {
		return nil, wrapErr("generate key", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, wrapErr("generate key", fmt.Errorf("expected RSA key, got %T", pub))
	}
	return rsaPub, nil
}

func (t *pivToken) ImportKey(managementKey []byte, slot Slot, priv *rsa.PrivateKey) error {
	ps, err := pivSlot(slot)
	if err != nil {
		return wrapErr("import key", err)
	}
	return wrapErr("import key", t.yk.SetPrivateKeyInsecure(managementKey, ps, priv, pivKeyTemplate))
}

func (t *pivToken) SetCertificate(managementKey []byte, slot Slot, cert *x509.Certificate) error {
	ps, err := pivSlot(slot)
	if err != nil {
		return wrapErr("set certificate", err)
	}
	return wrapErr("set certificate", t.yk.SetCertificate(managementKey, ps, cert))
}

func (t *pivToken) Close() error {
	return wrapErr("close", t.yk.Close())
}
