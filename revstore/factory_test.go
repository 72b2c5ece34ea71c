package revstore

import (
	"log/slog"
	"testing"

	"github.com/signet-labs/authrepo-signing-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryStoreFor(t *testing.T) {
	factory := NewFactory(slog.Default(), nil)

	store, err := factory.StoreFor(interfaces.StoreLocation("github://octocat/hello-world"))
	require.NoError(t, err)
	assert.IsType(t, &GitHubStore{}, store)

	store, err = factory.StoreFor(interfaces.StoreLocation("file://" + t.TempDir()))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	store, err = factory.StoreFor(interfaces.StoreLocation("s3://mirror-bucket/trail/?region=eu-west-1"))
	require.NoError(t, err)
	assert.IsType(t, &S3Store{}, store)

	store, err = factory.StoreFor(interfaces.StoreLocation("ipfs://127.0.0.1:5001/?manifest=QmManifest"))
	require.NoError(t, err)
	assert.IsType(t, &IPFSStore{}, store)
}

func TestFactoryRejectsInvalidLocations(t *testing.T) {
	factory := NewFactory(slog.Default(), nil)

	_, err := factory.StoreFor(interfaces.StoreLocation("gopher://example.org"))
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI, "unsupported scheme")

	_, err = factory.StoreFor(interfaces.StoreLocation("github://just-an-owner"))
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI, "github URIs need owner and repo")

	_, err = factory.StoreFor(interfaces.StoreLocation("ipfs://127.0.0.1:5001"))
	assert.Error(t, err, "ipfs URIs need a manifest CID")
}

func TestFactoryCreateMultiStore(t *testing.T) {
	factory := NewFactory(slog.Default(), nil)

	store, err := factory.CreateMultiStore([]interfaces.StoreLocation{
		"github://octocat/hello-world",
		"gopher://bad-mirror",
		interfaces.StoreLocation("file://" + t.TempDir()),
	})
	require.NoError(t, err, "invalid locations should be skipped, not fatal")
	assert.IsType(t, &MultiStore{}, store)
	assert.Contains(t, store.LocationURI(), "github://")

	_, err = factory.CreateMultiStore([]interfaces.StoreLocation{"gopher://bad-mirror"})
	assert.Error(t, err, "no usable mirror at all is an error")
}
