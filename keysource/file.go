package keysource

import (
	"bytes"
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"os"

	"github.com/signet-labs/authrepo-signing-backend/cryptoutils"
)

// PassphraseFunc supplies the passphrase for a sealed key file. It is
// only invoked when the file turns out to be sealed.
type PassphraseFunc func(ctx context.Context) (string, error)

// FileSource reads a private key from a local file. Plain PKCS#8/PKCS#1
// PEM and cryptoutils-sealed files are both accepted.
type FileSource struct {
	path       string
	passphrase PassphraseFunc
	log        *slog.Logger
}

// NewFileSource creates a file key source. passphrase may be nil when the
// file is known to be unsealed.
func NewFileSource(path string, passphrase PassphraseFunc, log *slog.Logger) *FileSource {
	return &FileSource{
		path:       path,
		passphrase: passphrase,
		log:        log,
	}
}

// Load reads and parses the key.
func (s *FileSource) Load(ctx context.Context) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	if bytes.Contains(data, []byte("-----BEGIN")) {
		key, err := cryptoutils.ParsePrivateKeyPEM(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.path, err)
		}
		return key, nil
	}

	// Not PEM, assume a sealed key file.
	if s.passphrase == nil {
		return nil, fmt.Errorf("%s is sealed and no passphrase source is configured", s.path)
	}
	passphrase, err := s.passphrase(ctx)
	if err != nil {
		return nil, err
	}

	key, err := cryptoutils.OpenPrivateKey(data, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}

	s.log.Debug("Loaded sealed private key", slog.String("path", s.path))
	return key, nil
}
