package hsm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/signet-labs/authrepo-signing-backend/interfaces"
)

// LoadedRoles tracks which metadata roles each token has been picked up
// for, keyed by serial. The map is caller-owned, shared across FindSigner
// calls within one high-level operation, and has no built-in locking.
type LoadedRoles map[uint32][]interfaces.RoleName

// contains reports whether the role is already recorded for the serial.
func (l LoadedRoles) contains(serial uint32, role interfaces.RoleName) bool {
	for _, r := range l[serial] {
		if r == role {
			return true
		}
	}
	return false
}

// DiscoverOptions steer one FindSigner run.
type DiscoverOptions struct {
	// KeyName is the logical name recorded in the cache for the found
	// token. Optional.
	KeyName string

	// Role, when set, requires the token's key to be an authorized signer
	// per Registry, unless RegisteringNewKey or CreatingNewKey is set.
	Role     interfaces.RoleName
	Registry interfaces.SignerRegistry

	// RegisteringNewKey skips role validation: the key already exists on
	// the token but is not yet recorded in the role metadata, so its PIN
	// is still entered and verified.
	RegisteringNewKey bool

	// CreatingNewKey selects a token whose slot holds no key yet. The
	// public-key export and role validation are skipped, and PIN
	// acquisition chooses a fresh PIN instead of verifying one against
	// the token.
	CreatingNewKey bool

	// Retry makes the loop block on a human prompt and rescan after every
	// miss, until success or ctx cancellation. When false, a miss returns
	// interfaces.ErrNoEligibleToken.
	Retry bool

	// Prompt overrides the insertion prompt message.
	Prompt string

	// Serial restricts discovery to one token. Zero matches any.
	Serial uint32

	// PublicKeyPEM restricts discovery to the token holding this key.
	PublicKeyPEM []byte

	// Slot is the key slot to inspect. Zero value selects the signature
	// slot.
	Slot Slot

	// LoadedRoles is the caller-owned map updated on success. A token
	// already recorded for the requested role is skipped.
	LoadedRoles LoadedRoles
}

// SignerInfo describes the token FindSigner settled on.
type SignerInfo struct {
	Serial       uint32
	Slot         Slot
	PublicKeyPEM []byte
	PIN          string
}

// Discovery runs the token discovery loop.
type Discovery struct {
	transport Transport
	cache     *KeyCache
	prompter  Prompter
	log       *slog.Logger
}

// NewDiscovery creates a discovery loop over the given transport.
func NewDiscovery(transport Transport, cache *KeyCache, prompter Prompter, log *slog.Logger) *Discovery {
	return &Discovery{
		transport: transport,
		cache:     cache,
		prompter:  prompter,
		log:       log,
	}
}

// FindSigner locates an inserted token satisfying opts and acquires its
// PIN. Candidate misses (filtered serial, role mismatch, per-candidate
// transport trouble) skip to the next candidate. When every candidate
// misses, the loop either returns interfaces.ErrNoEligibleToken (Retry
// disabled) or prompts for an insertion and rescans, with no attempt
// limit; cancellation comes from ctx. A PIN lock-out or a declined PIN
// entry aborts immediately.
func (d *Discovery) FindSigner(ctx context.Context, opts DiscoverOptions) (*SignerInfo, error) {
	if opts.Slot == (Slot{}) {
		opts.Slot = SlotSignature
	}
	if opts.Role != "" && !opts.RegisteringNewKey && !opts.CreatingNewKey && opts.Registry == nil {
		return nil, fmt.Errorf("role %q requested but no signer registry configured", opts.Role)
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			message := opts.Prompt
			if message == "" {
				message = "Insert a hardware signing token."
			}
			if err := d.prompter.AwaitToken(ctx, message); err != nil {
				return nil, err
			}
		}

		info, err := d.scanOnce(ctx, opts)
		if err != nil {
			return nil, err
		}
		if info != nil {
			return info, nil
		}

		if !opts.Retry {
			return nil, interfaces.ErrNoEligibleToken
		}
		d.log.Info("No eligible token found, waiting for insertion",
			slog.Int("attempt", attempt+1))
	}
}

// scanOnce tries every currently inserted token. It returns (nil, nil)
// when all candidates missed, and a non-nil error only for fatal
// conditions that must abort the whole loop.
func (d *Discovery) scanOnce(ctx context.Context, opts DiscoverOptions) (*SignerInfo, error) {
	tokens, err := d.transport.Tokens()
	if err != nil {
		// No reader or a dead PC/SC daemon reads as zero candidates; the
		// retry policy decides what happens next.
		d.log.Warn("Token enumeration failed", "err", err)
		return nil, nil
	}

	for i, token := range tokens {
		info, err := d.tryCandidate(ctx, token, opts)
		d.closeToken(token)
		if err != nil || info != nil {
			// Connections to the candidates this scan never reached are
			// released before leaving, success or not.
			for _, remaining := range tokens[i+1:] {
				d.closeToken(remaining)
			}
			return info, err
		}
	}
	return nil, nil
}

func (d *Discovery) closeToken(token Token) {
	if err := token.Close(); err != nil {
		d.log.Debug("Failed to close token connection", "err", err)
	}
}

// tryCandidate evaluates one open token. (nil, nil) means skip.
func (d *Discovery) tryCandidate(ctx context.Context, token Token, opts DiscoverOptions) (*SignerInfo, error) {
	session := NewSession(token, d.log)

	serial, err := session.Serial()
	if err != nil {
		d.log.Debug("Skipping token, cannot read serial", "err", err)
		return nil, nil
	}
	logAttrs := []any{slog.Uint64("serial", uint64(serial)), slog.String("slot", opts.Slot.Name)}

	if opts.Serial != 0 && serial != opts.Serial {
		return nil, nil
	}
	if opts.Role != "" && opts.LoadedRoles.contains(serial, opts.Role) {
		d.log.Debug("Skipping token, role already loaded from it", logAttrs...)
		return nil, nil
	}

	// A slot about to receive its first key has nothing to export or
	// validate yet.
	var pubPEM []byte
	if !opts.CreatingNewKey {
		pubPEM, err = session.PublicKeyPEM(opts.Slot)
		if err != nil {
			d.log.Debug("Skipping token, no usable key", append(logAttrs, "err", err)...)
			return nil, nil
		}
		if opts.PublicKeyPEM != nil && !pemBytesEqual(pubPEM, opts.PublicKeyPEM) {
			return nil, nil
		}
	}

	if opts.Role != "" && !opts.RegisteringNewKey && !opts.CreatingNewKey {
		authorized, err := opts.Registry.IsAuthorizedSigner(ctx, opts.Role, pubPEM)
		if err != nil {
			d.log.Warn("Skipping token, signer lookup failed", append(logAttrs, "err", err)...)
			return nil, nil
		}
		if !authorized {
			d.log.Info("Skipping token, key not authorized for role",
				append(logAttrs, slog.String("role", string(opts.Role)))...)
			return nil, nil
		}
	}

	pin, err := d.acquirePIN(ctx, session, serial, opts)
	if err != nil {
		if isFatalPINError(err) {
			return nil, err
		}
		d.log.Debug("Skipping token, PIN acquisition failed", append(logAttrs, "err", err)...)
		return nil, nil
	}

	if pubPEM != nil {
		d.cache.SetPublicKey(serial, pubPEM)
	}
	if opts.KeyName != "" {
		d.cache.SetSerial(opts.KeyName, serial)
	}
	if opts.Role != "" && opts.LoadedRoles != nil {
		opts.LoadedRoles[serial] = append(opts.LoadedRoles[serial], opts.Role)
	}

	d.log.Info("Found eligible signing token", logAttrs...)
	return &SignerInfo{
		Serial:       serial,
		Slot:         opts.Slot,
		PublicKeyPEM: pubPEM,
		PIN:          pin,
	}, nil
}

// acquirePIN obtains the token's PIN: cached, freshly chosen for a new
// key, or entered and verified with a bounded sub-loop. The verified PIN
// is cached first-write-wins.
func (d *Discovery) acquirePIN(ctx context.Context, session *Session, serial uint32, opts DiscoverOptions) (string, error) {
	if pin, ok := d.cache.PIN(serial); ok {
		return pin, nil
	}

	if opts.CreatingNewKey {
		pin, err := d.prompter.ChooseNewPIN(ctx, serial)
		if err != nil {
			return "", err
		}
		d.cache.SetPIN(serial, pin)
		return pin, nil
	}

	for {
		pin, err := d.prompter.RequestPIN(ctx, serial)
		if err != nil {
			return "", err
		}

		err = session.VerifyPIN(pin)
		if err == nil {
			d.cache.SetPIN(serial, pin)
			return pin, nil
		}
		if errors.Is(err, interfaces.ErrPINLockedOut) {
			return "", err
		}

		var invalidPIN *interfaces.InvalidPINError
		if !errors.As(err, &invalidPIN) {
			return "", err
		}
		retry, perr := d.prompter.Confirm(ctx,
			fmt.Sprintf("Wrong PIN, %d attempts remaining. Try again?", invalidPIN.Remaining))
		if perr != nil {
			return "", perr
		}
		if !retry {
			return "", interfaces.ErrPINEntryCanceled
		}
	}
}

func isFatalPINError(err error) bool {
	return errors.Is(err, interfaces.ErrPINLockedOut) ||
		errors.Is(err, interfaces.ErrPINEntryCanceled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// pemBytesEqual compares PEM text tolerating a trailing-newline
// difference.
func pemBytesEqual(a, b []byte) bool {
	return strings.TrimRight(string(a), "\n") == strings.TrimRight(string(b), "\n")
}

// TokenInfo describes one inserted token for listing purposes.
type TokenInfo struct {
	Serial  uint32
	Version string

	// Slots maps slot name to the subject common name of the certificate
	// it holds. Empty slots are absent.
	Slots map[string]string
}

// ListTokens enumerates inserted tokens with their firmware version and
// occupied slots.
func (d *Discovery) ListTokens(ctx context.Context) ([]TokenInfo, error) {
	tokens, err := d.transport.Tokens()
	if err != nil {
		return nil, err
	}

	infos := make([]TokenInfo, 0, len(tokens))
	for _, token := range tokens {
		info := TokenInfo{Version: token.Version(), Slots: make(map[string]string)}

		serial, err := token.Serial()
		if err != nil {
			d.log.Warn("Skipping token in listing, cannot read serial", "err", err)
			_ = token.Close()
			continue
		}
		info.Serial = serial

		for _, slot := range SlotPriority {
			cert, err := token.Certificate(slot)
			if err != nil {
				continue
			}
			info.Slots[slot.Name] = cert.Subject.CommonName
		}

		if err := token.Close(); err != nil {
			d.log.Debug("Failed to close token connection", "err", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
