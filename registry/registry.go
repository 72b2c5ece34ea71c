package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/signet-labs/authrepo-signing-backend/interfaces"
)

// rootDocumentName is the trust anchor document inside the metadata
// directory.
const rootDocumentName = "root.json"

// rootMetadata is the subset of the root document the registry needs:
// the trusted key set and the role-to-key mapping.
type rootMetadata struct {
	Signed struct {
		Keys map[string]struct {
			KeyType string `json:"keytype"`
			Scheme  string `json:"scheme"`
			KeyVal  struct {
				Public string `json:"public"`
			} `json:"keyval"`
		} `json:"keys"`
		Roles map[string]struct {
			KeyIDs    []string `json:"keyids"`
			Threshold int      `json:"threshold"`
		} `json:"roles"`
	} `json:"signed"`
}

// MetadataSignerRegistry authorizes signing keys against the role
// definitions in a repository's root metadata.
type MetadataSignerRegistry struct {
	store        interfaces.RevisionStore
	metadataPath string
	log          *slog.Logger
}

// NewMetadataSignerRegistry creates a registry reading root metadata from
// the given store. metadataPath is the repository-relative metadata
// directory, typically "metadata".
func NewMetadataSignerRegistry(store interfaces.RevisionStore, metadataPath string, log *slog.Logger) *MetadataSignerRegistry {
	return &MetadataSignerRegistry{
		store:        store,
		metadataPath: metadataPath,
		log:          log,
	}
}

// IsAuthorizedSigner reports whether pubKeyPEM is one of the keys the root
// metadata assigns to role. The root document is read at the newest
// available revision.
func (r *MetadataSignerRegistry) IsAuthorizedSigner(ctx context.Context, role interfaces.RoleName, pubKeyPEM []byte) (bool, error) {
	root, rev, err := r.currentRoot(ctx)
	if err != nil {
		return false, err
	}

	roleInfo, ok := root.Signed.Roles[string(role)]
	if !ok {
		return false, fmt.Errorf("%w: role %q not defined in root metadata", interfaces.ErrRoleMismatch, role)
	}

	for _, keyID := range roleInfo.KeyIDs {
		key, ok := root.Signed.Keys[keyID]
		if !ok {
			r.log.Warn("Role references unknown key",
				slog.String("role", string(role)),
				slog.String("key_id", keyID),
				slog.String("revision", rev.Short()))
			continue
		}
		if pemEqual(key.KeyVal.Public, string(pubKeyPEM)) {
			r.log.Debug("Key authorized for role",
				slog.String("role", string(role)),
				slog.String("key_id", keyID))
			return true, nil
		}
	}

	return false, nil
}

// RoleKeys returns the PEM public keys the root metadata assigns to role.
func (r *MetadataSignerRegistry) RoleKeys(ctx context.Context, role interfaces.RoleName) ([]string, error) {
	root, _, err := r.currentRoot(ctx)
	if err != nil {
		return nil, err
	}

	roleInfo, ok := root.Signed.Roles[string(role)]
	if !ok {
		return nil, fmt.Errorf("%w: role %q not defined in root metadata", interfaces.ErrRoleMismatch, role)
	}

	keys := make([]string, 0, len(roleInfo.KeyIDs))
	for _, keyID := range roleInfo.KeyIDs {
		key, ok := root.Signed.Keys[keyID]
		if !ok {
			continue
		}
		keys = append(keys, key.KeyVal.Public)
	}
	return keys, nil
}

func (r *MetadataSignerRegistry) currentRoot(ctx context.Context) (*rootMetadata, interfaces.Revision, error) {
	revisions, err := r.store.ListRevisions(ctx, "", "")
	if err != nil {
		return nil, "", fmt.Errorf("failed to list revisions: %w", err)
	}
	if len(revisions) == 0 {
		return nil, "", fmt.Errorf("%w: repository has no revisions", interfaces.ErrStoreUnavailable)
	}
	newest := revisions[len(revisions)-1]

	raw, err := r.store.ReadJSON(ctx, newest, path.Join(r.metadataPath, rootDocumentName))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read root metadata at %s: %w", newest.Short(), err)
	}

	var root rootMetadata
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, "", fmt.Errorf("%w: root metadata: %v", interfaces.ErrMalformedDocument, err)
	}

	return &root, newest, nil
}

// pemEqual compares PEM text ignoring a trailing newline difference.
func pemEqual(a, b string) bool {
	return strings.TrimRight(a, "\n") == strings.TrimRight(b, "\n")
}
