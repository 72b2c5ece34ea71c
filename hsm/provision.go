package hsm

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/signet-labs/authrepo-signing-backend/cryptoutils"
	"github.com/signet-labs/authrepo-signing-backend/interfaces"
)

// DefaultCertValidDays is the certificate validity applied when the
// config leaves it zero.
const DefaultCertValidDays = 365

// SetupConfig parameterizes token provisioning.
type SetupConfig struct {
	// PIN replaces the factory default. Required.
	PIN string

	// PUK replaces the factory default. Empty sets the PUK equal to the
	// PIN.
	PUK string

	// CommonName is the subject and issuer of the slot certificate.
	CommonName string

	// CertValidDays is the certificate validity window. Zero selects
	// DefaultCertValidDays.
	CertValidDays int

	// PINRetries and PUKRetries configure the hardware retry counters.
	// Zero leaves the device defaults in place.
	PINRetries int
	PUKRetries int

	// Key is imported instead of generating fresh material when set.
	Key *rsa.PrivateKey

	// Slot forces a specific slot. Zero value selects the first free slot
	// in SlotPriority order.
	Slot Slot
}

// SetupResult reports what provisioning installed.
type SetupResult struct {
	Serial         uint32
	Slot           Slot
	PublicKeyPEM   []byte
	CertificatePEM []byte

	// ManagementKey is the freshly generated management key. It exists
	// nowhere else; the caller must escrow it (see SplitManagementKey) or
	// accept that certificate and key operations on this token become
	// impossible.
	ManagementKey []byte
}

// Setup provisions one token from factory state. The sequence is strictly
// ordered and not transactional: factory reset, fresh management key,
// slot selection, key material injection with a PIN-always policy,
// self-signed certificate, retry counters, PIN and PUK rotation. Any
// failure after the reset leaves the token reset but only partially
// configured; it must be treated as unusable until Setup is re-run.
func Setup(token Token, cfg SetupConfig, log *slog.Logger) (*SetupResult, error) {
	if cfg.PIN == "" {
		return nil, errors.New("setup requires a PIN")
	}
	if cfg.CommonName == "" {
		return nil, errors.New("setup requires a certificate common name")
	}
	validDays := cfg.CertValidDays
	if validDays == 0 {
		validDays = DefaultCertValidDays
	}

	serial, err := token.Serial()
	if err != nil {
		return nil, err
	}
	log = log.With(slog.Uint64("serial", uint64(serial)))

	log.Info("Resetting token to factory state")
	if err := token.Reset(); err != nil {
		return nil, err
	}

	managementKey := make([]byte, ManagementKeyLen)
	if _, err := io.ReadFull(rand.Reader, managementKey); err != nil {
		return nil, fmt.Errorf("failed to generate management key: %w", err)
	}
	if err := token.SetManagementKey(DefaultManagementKey, managementKey); err != nil {
		return nil, err
	}

	slot := cfg.Slot
	if slot == (Slot{}) {
		slot, err = firstFreeSlot(token)
		if err != nil {
			return nil, err
		}
	}
	log.Info("Selected key slot", slog.String("slot", slot.Name))

	priv := cfg.Key
	if priv == nil {
		priv, err = cryptoutils.GenerateRSAKey()
		if err != nil {
			return nil, err
		}
	}
	if err := token.ImportKey(managementKey, slot, priv); err != nil {
		return nil, err
	}

	cert, err := cryptoutils.SelfSignedRSACertificate(priv, cfg.CommonName, validDays)
	if err != nil {
		return nil, err
	}
	if err := token.SetCertificate(managementKey, slot, cert); err != nil {
		return nil, err
	}

	if cfg.PINRetries > 0 || cfg.PUKRetries > 0 {
		err := token.SetPINRetries(managementKey, DefaultPIN, cfg.PINRetries, cfg.PUKRetries)
		if errors.Is(err, ErrRetryConfigUnsupported) {
			log.Warn("Transport cannot change retry counters, device defaults kept")
		} else if err != nil {
			return nil, err
		}
	}

	if err := token.SetPIN(DefaultPIN, cfg.PIN); err != nil {
		return nil, err
	}
	puk := cfg.PUK
	if puk == "" {
		puk = cfg.PIN
	}
	if err := token.SetPUK(DefaultPUK, puk); err != nil {
		return nil, err
	}

	pubPEM, err := cryptoutils.MarshalPublicKeyPEM(&priv.PublicKey)
	if err != nil {
		return nil, err
	}

	log.Info("Token provisioned",
		slog.String("slot", slot.Name),
		slog.String("common_name", cfg.CommonName))

	return &SetupResult{
		Serial:         serial,
		Slot:           slot,
		PublicKeyPEM:   pubPEM,
		CertificatePEM: cryptoutils.CertificatePEM(cert),
		ManagementKey:  managementKey,
	}, nil
}

// firstFreeSlot returns the first slot in priority order without a
// certificate, or interfaces.ErrNoAvailableSlot when all are occupied.
func firstFreeSlot(token Token) (Slot, error) {
	for _, slot := range SlotPriority {
		_, err := token.Certificate(slot)
		if errors.Is(err, ErrSlotEmpty) {
			return slot, nil
		}
		if err != nil {
			return Slot{}, err
		}
	}
	return Slot{}, interfaces.ErrNoAvailableSlot
}
