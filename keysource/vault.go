package keysource

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/signet-labs/authrepo-signing-backend/cryptoutils"
)

// VaultSource reads a PEM private key from a HashiCorp Vault KV v2
// secret. The secret's data map must hold the PEM under the "key" field.
type VaultSource struct {
	client    *api.Client
	mountPath string
	dataPath  string
	log       *slog.Logger
}

// NewVaultSource creates a Vault key source.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - token: Vault auth token
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: path within the mount (e.g. "signing/targets")
func NewVaultSource(address, token, mountPath, dataPath string, log *slog.Logger) (*VaultSource, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultSource{
		client:    client,
		mountPath: strings.TrimSuffix(mountPath, "/"),
		dataPath:  strings.Trim(dataPath, "/"),
		log:       log,
	}, nil
}

// Load reads and parses the key from Vault.
func (s *VaultSource) Load(ctx context.Context) (*rsa.PrivateKey, error) {
	start := time.Now()

	// Vault KV v2 path structure
	path := fmt.Sprintf("%s/data/%s", s.mountPath, s.dataPath)

	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secret at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid data format in Vault response at %s", path)
	}
	keyPEM, ok := data["key"].(string)
	if !ok {
		return nil, fmt.Errorf("key field not found in Vault secret at %s", path)
	}

	key, err := cryptoutils.ParsePrivateKeyPEM([]byte(keyPEM))
	if err != nil {
		return nil, fmt.Errorf("vault secret at %s: %w", path, err)
	}

	s.log.Debug("Loaded private key from Vault",
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)))
	return key, nil
}
