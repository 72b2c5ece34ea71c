package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/signet-labs/authrepo-signing-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	signerPEM = "-----BEGIN PUBLIC KEY-----\nMIIBIjANBgkq\n-----END PUBLIC KEY-----\n"
	otherPEM  = "-----BEGIN PUBLIC KEY-----\nQQQQQQQQQQQQ\n-----END PUBLIC KEY-----\n"

	oldRev = interfaces.Revision("1111111111111111111111111111111111111111")
	newRev = interfaces.Revision("2222222222222222222222222222222222222222")
)

type fakeRootStore struct {
	revisions []interfaces.Revision
	roots     map[interfaces.Revision]string
	listErr   error
}

func (f *fakeRootStore) ListRevisions(ctx context.Context, since, until interfaces.Revision) ([]interfaces.Revision, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.revisions, nil
}

func (f *fakeRootStore) ReadJSON(ctx context.Context, rev interfaces.Revision, path string) (json.RawMessage, error) {
	root, ok := f.roots[rev]
	if !ok {
		return nil, fmt.Errorf("%s at %s: %w", path, rev.Short(), interfaces.ErrUnavailableAtRevision)
	}
	return json.RawMessage(root), nil
}

func (f *fakeRootStore) Available(ctx context.Context) bool { return true }
func (f *fakeRootStore) Name() string                       { return "fake-root-store" }
func (f *fakeRootStore) LocationURI() string                { return "fake://root-store" }

func rootDocument(t *testing.T, roleKeys map[string][]string, keys map[string]string) string {
	t.Helper()

	type roleEntry struct {
		KeyIDs    []string `json:"keyids"`
		Threshold int      `json:"threshold"`
	}
	type keyEntry struct {
		KeyType string `json:"keytype"`
		Scheme  string `json:"scheme"`
		KeyVal  struct {
			Public string `json:"public"`
		} `json:"keyval"`
	}

	doc := struct {
		Signed struct {
			Keys  map[string]keyEntry  `json:"keys"`
			Roles map[string]roleEntry `json:"roles"`
		} `json:"signed"`
	}{}
	doc.Signed.Keys = map[string]keyEntry{}
	doc.Signed.Roles = map[string]roleEntry{}

	for keyID, pem := range keys {
		entry := keyEntry{KeyType: "rsa", Scheme: "rsassa-pkcs1v15-sha256"}
		entry.KeyVal.Public = pem
		doc.Signed.Keys[keyID] = entry
	}
	for role, keyIDs := range roleKeys {
		doc.Signed.Roles[role] = roleEntry{KeyIDs: keyIDs, Threshold: 1}
	}

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(data)
}

func TestIsAuthorizedSigner(t *testing.T) {
	store := &fakeRootStore{
		revisions: []interfaces.Revision{oldRev, newRev},
		roots: map[interfaces.Revision]string{
			newRev: rootDocument(t,
				map[string][]string{"targets": {"key1"}, "snapshot": {"key2"}},
				map[string]string{"key1": signerPEM, "key2": otherPEM}),
		},
	}
	reg := NewMetadataSignerRegistry(store, "metadata", slog.Default())
	ctx := context.Background()

	ok, err := reg.IsAuthorizedSigner(ctx, "targets", []byte(signerPEM))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.IsAuthorizedSigner(ctx, "targets", []byte(otherPEM))
	require.NoError(t, err)
	assert.False(t, ok, "key assigned to another role must not authorize")

	_, err = reg.IsAuthorizedSigner(ctx, "timestamp", []byte(signerPEM))
	assert.ErrorIs(t, err, interfaces.ErrRoleMismatch, "undefined role")
}

func TestIsAuthorizedSignerNewlineTolerance(t *testing.T) {
	trimmed := "-----BEGIN PUBLIC KEY-----\nMIIBIjANBgkq\n-----END PUBLIC KEY-----"
	store := &fakeRootStore{
		revisions: []interfaces.Revision{newRev},
		roots: map[interfaces.Revision]string{
			newRev: rootDocument(t,
				map[string][]string{"targets": {"key1"}},
				map[string]string{"key1": trimmed}),
		},
	}
	reg := NewMetadataSignerRegistry(store, "metadata", slog.Default())

	ok, err := reg.IsAuthorizedSigner(context.Background(), "targets", []byte(signerPEM))
	require.NoError(t, err)
	assert.True(t, ok, "trailing newline must not affect key comparison")
}

func TestIsAuthorizedSignerReadsNewestRevision(t *testing.T) {
	// The key is only trusted in the old root. Authorization follows the
	// newest revision, so it must be refused.
	store := &fakeRootStore{
		revisions: []interfaces.Revision{oldRev, newRev},
		roots: map[interfaces.Revision]string{
			oldRev: rootDocument(t,
				map[string][]string{"targets": {"key1"}},
				map[string]string{"key1": signerPEM}),
			newRev: rootDocument(t,
				map[string][]string{"targets": {"key2"}},
				map[string]string{"key2": otherPEM}),
		},
	}
	reg := NewMetadataSignerRegistry(store, "metadata", slog.Default())

	ok, err := reg.IsAuthorizedSigner(context.Background(), "targets", []byte(signerPEM))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoleKeys(t *testing.T) {
	store := &fakeRootStore{
		revisions: []interfaces.Revision{newRev},
		roots: map[interfaces.Revision]string{
			newRev: rootDocument(t,
				map[string][]string{"targets": {"key1", "key2", "ghost"}},
				map[string]string{"key1": signerPEM, "key2": otherPEM}),
		},
	}
	reg := NewMetadataSignerRegistry(store, "metadata", slog.Default())

	keys, err := reg.RoleKeys(context.Background(), "targets")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{signerPEM, otherPEM}, keys, "unknown key ids are skipped")
}

func TestRegistryStoreFailures(t *testing.T) {
	reg := NewMetadataSignerRegistry(&fakeRootStore{listErr: interfaces.ErrStoreUnavailable}, "metadata", slog.Default())
	_, err := reg.IsAuthorizedSigner(context.Background(), "targets", []byte(signerPEM))
	assert.ErrorIs(t, err, interfaces.ErrStoreUnavailable)

	reg = NewMetadataSignerRegistry(&fakeRootStore{revisions: []interfaces.Revision{newRev}}, "metadata", slog.Default())
	_, err = reg.IsAuthorizedSigner(context.Background(), "targets", []byte(signerPEM))
	assert.ErrorIs(t, err, interfaces.ErrUnavailableAtRevision, "missing root document")
}
