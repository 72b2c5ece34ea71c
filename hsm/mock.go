package hsm

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/signet-labs/authrepo-signing-backend/cryptoutils"
	"github.com/signet-labs/authrepo-signing-backend/interfaces"
)

// FakeTransport serves a scripted set of tokens.
type FakeTransport struct {
	// TokenList is returned by Tokens. Entries are handed out on every
	// call; fakes tolerate repeated Close.
	TokenList []Token

	// Err fails enumeration when set.
	Err error
}

func (t *FakeTransport) Tokens() ([]Token, error) {
	if t.Err != nil {
		return nil, t.Err
	}
	return t.TokenList, nil
}

// FakeSlotState is the content of one fake slot.
type FakeSlotState struct {
	Priv *rsa.PrivateKey
	Cert *x509.Certificate
}

// FakeToken is a stateful in-memory token. It behaves like real hardware
// where the tests care: PIN retry counters decrement and lock out, reset
// restores factory state, provisioning operations demand the current
// management key.
type FakeToken struct {
	SerialNumber uint32
	VersionStr   string

	PIN           string
	PUK           string
	ManagementKey []byte
	MaxRetries    int
	RetriesLeft   int

	Slots map[uint32]*FakeSlotState

	// FailWith injects a transport fault into every operation.
	FailWith error

	// KeepSlotsOnReset leaves slot contents in place across Reset, for
	// exercising the no-free-slot path.
	KeepSlotsOnReset bool

	ResetCount int
	Closed     bool
}

// NewFakeToken creates a factory-state token.
func NewFakeToken(serial uint32) *FakeToken {
	return &FakeToken{
		SerialNumber:  serial,
		VersionStr:    "5.4.3",
		PIN:           DefaultPIN,
		PUK:           DefaultPUK,
		ManagementKey: append([]byte(nil), DefaultManagementKey...),
		MaxRetries:    3,
		RetriesLeft:   3,
		Slots:         make(map[uint32]*FakeSlotState),
	}
}

// Provision puts a key and self-signed certificate into a slot, for tests
// that need a pre-provisioned token.
func (t *FakeToken) Provision(slot Slot, priv *rsa.PrivateKey, commonName string) error {
	cert, err := cryptoutils.SelfSignedRSACertificate(priv, commonName, 365)
	if err != nil {
		return err
	}
	t.Slots[slot.Key] = &FakeSlotState{Priv: priv, Cert: cert}
	return nil
}

func (t *FakeToken) fail(op string) error {
	if t.FailWith != nil {
		return &interfaces.TransportError{Op: op, Err: t.FailWith}
	}
	return nil
}

func (t *FakeToken) Serial() (uint32, error) {
	if err := t.fail("read serial"); err != nil {
		return 0, err
	}
	return t.SerialNumber, nil
}

func (t *FakeToken) Version() string { return t.VersionStr }

func (t *FakeToken) PINRetries() (int, error) {
	if err := t.fail("read pin retries"); err != nil {
		return 0, err
	}
	return t.RetriesLeft, nil
}

func (t *FakeToken) VerifyPIN(pin string) error {
	if err := t.fail("verify pin"); err != nil {
		return err
	}
	if t.RetriesLeft == 0 {
		return interfaces.ErrPINLockedOut
	}
	if pin != t.PIN {
		t.RetriesLeft--
		if t.RetriesLeft == 0 {
			return interfaces.ErrPINLockedOut
		}
		return &interfaces.InvalidPINError{Remaining: t.RetriesLeft}
	}
	t.RetriesLeft = t.MaxRetries
	return nil
}

func (t *FakeToken) Certificate(slot Slot) (*x509.Certificate, error) {
	if err := t.fail("get certificate"); err != nil {
		return nil, err
	}
	state, ok := t.Slots[slot.Key]
	if !ok || state.Cert == nil {
		return nil, fmt.Errorf("slot %s: %w", slot, ErrSlotEmpty)
	}
	return state.Cert, nil
}

func (t *FakeToken) Sign(slot Slot, pub *rsa.PublicKey, pin string, data []byte) ([]byte, error) {
	if err := t.fail("sign"); err != nil {
		return nil, err
	}
	if pin != t.PIN {
		return nil, fmt.Errorf("%w: pin rejected", interfaces.ErrSigningFailed)
	}
	state, ok := t.Slots[slot.Key]
	if !ok || state.Priv == nil {
		return nil, fmt.Errorf("%w: slot %s holds no key", interfaces.ErrSigningFailed, slot)
	}
	sig, err := cryptoutils.SignPKCS1v15(state.Priv, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSigningFailed, err)
	}
	return sig, nil
}

func (t *FakeToken) Reset() error {
	if err := t.fail("factory reset"); err != nil {
		return err
	}
	t.PIN = DefaultPIN
	t.PUK = DefaultPUK
	t.ManagementKey = append([]byte(nil), DefaultManagementKey...)
	t.RetriesLeft = t.MaxRetries
	if !t.KeepSlotsOnReset {
		t.Slots = make(map[uint32]*FakeSlotState)
	}
	t.ResetCount++
	return nil
}

func (t *FakeToken) checkManagementKey(op string, key []byte) error {
	if !bytesEqual(key, t.ManagementKey) {
		return &interfaces.TransportError{Op: op, Err: errors.New("management key rejected")}
	}
	return nil
}

func (t *FakeToken) SetManagementKey(oldKey, newKey []byte) error {
	if err := t.fail("set management key"); err != nil {
		return err
	}
	if err := t.checkManagementKey("set management key", oldKey); err != nil {
		return err
	}
	t.ManagementKey = append([]byte(nil), newKey...)
	return nil
}

func (t *FakeToken) SetPIN(oldPIN, newPIN string) error {
	if err := t.fail("change pin"); err != nil {
		return err
	}
	if oldPIN != t.PIN {
		return &interfaces.TransportError{Op: "change pin", Err: errors.New("current pin rejected")}
	}
	t.PIN = newPIN
	return nil
}

func (t *FakeToken) SetPUK(oldPUK, newPUK string) error {
	if err := t.fail("change puk"); err != nil {
		return err
	}
	if oldPUK != t.PUK {
		return &interfaces.TransportError{Op: "change puk", Err: errors.New("current puk rejected")}
	}
	t.PUK = newPUK
	return nil
}

func (t *FakeToken) SetPINRetries(managementKey []byte, pin string, pinRetries, pukRetries int) error {
	if err := t.fail("set pin retries"); err != nil {
		return err
	}
	if err := t.checkManagementKey("set pin retries", managementKey); err != nil {
		return err
	}
	t.MaxRetries = pinRetries
	t.RetriesLeft = pinRetries
	return nil
}

func (t *FakeToken) GenerateKey(managementKey []byte, slot Slot) (*rsa.PublicKey, error) {
	if err := t.fail("generate key"); err != nil {
		return nil, err
	}
	if err := t.checkManagementKey("generate key", managementKey); err != nil {
		return nil, err
	}
	priv, err := cryptoutils.GenerateRSAKey()
	if err != nil {
		return nil, err
	}
	t.Slots[slot.Key] = &FakeSlotState{Priv: priv}
	return &priv.PublicKey, nil
}

func (t *FakeToken) ImportKey(managementKey []byte, slot Slot, priv *rsa.PrivateKey) error {
	if err := t.fail("import key"); err != nil {
		return err
	}
	if err := t.checkManagementKey("import key", managementKey); err != nil {
		return err
	}
	state := t.Slots[slot.Key]
	if state == nil {
		state = &FakeSlotState{}
		t.Slots[slot.Key] = state
	}
	state.Priv = priv
	return nil
}

func (t *FakeToken) SetCertificate(managementKey []byte, slot Slot, cert *x509.Certificate) error {
	if err := t.fail("set certificate"); err != nil {
		return err
	}
	if err := t.checkManagementKey("set certificate", managementKey); err != nil {
		return err
	}
	state := t.Slots[slot.Key]
	if state == nil {
		state = &FakeSlotState{}
		t.Slots[slot.Key] = state
	}
	state.Cert = cert
	return nil
}

func (t *FakeToken) Close() error {
	t.Closed = true
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ScriptedPrompter replays canned answers for the interactive decision
// points.
type ScriptedPrompter struct {
	PINs     []string
	NewPINs  []string
	Confirms []bool
	Secrets  []string

	// AwaitErr fails AwaitToken; otherwise it succeeds and counts.
	AwaitErr    error
	AwaitCalls  int
	PINRequests int
}

func (p *ScriptedPrompter) AwaitToken(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.AwaitCalls++
	return p.AwaitErr
}

func (p *ScriptedPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	if len(p.Confirms) == 0 {
		return false, errors.New("scripted prompter has no confirm answers left")
	}
	answer := p.Confirms[0]
	p.Confirms = p.Confirms[1:]
	return answer, nil
}

func (p *ScriptedPrompter) RequestPIN(ctx context.Context, serial uint32) (string, error) {
	if len(p.PINs) == 0 {
		return "", errors.New("scripted prompter has no pins left")
	}
	p.PINRequests++
	pin := p.PINs[0]
	p.PINs = p.PINs[1:]
	return pin, nil
}

func (p *ScriptedPrompter) ChooseNewPIN(ctx context.Context, serial uint32) (string, error) {
	if len(p.NewPINs) == 0 {
		return "", errors.New("scripted prompter has no new pins left")
	}
	pin := p.NewPINs[0]
	p.NewPINs = p.NewPINs[1:]
	return pin, nil
}

func (p *ScriptedPrompter) RequestSecret(ctx context.Context, label string) (string, error) {
	if len(p.Secrets) == 0 {
		return "", errors.New("scripted prompter has no secrets left")
	}
	secret := p.Secrets[0]
	p.Secrets = p.Secrets[1:]
	return secret, nil
}
