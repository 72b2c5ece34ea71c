package revstore

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/signet-labs/authrepo-signing-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	revA = interfaces.Revision("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	revB = interfaces.Revision("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	revC = interfaces.Revision("cccccccccccccccccccccccccccccccccccccccc")
)

func newTestMirror(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	manifest := `{"revisions":["` + string(revA) + `","` + string(revB) + `","` + string(revC) + `"]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifest), 0o644))

	writeDoc := func(rev interfaces.Revision, path, content string) {
		full := filepath.Join(dir, "objects", string(rev), filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	writeDoc(revA, "metadata/targets.json", `{"signed":{"targets":{}}}`)
	writeDoc(revB, "metadata/targets.json", `not json at all`)

	return dir
}

func TestFileStoreListRevisions(t *testing.T) {
	store, err := NewFileStore(newTestMirror(t), slog.Default())
	require.NoError(t, err)

	revisions, err := store.ListRevisions(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, []interfaces.Revision{revA, revB, revC}, revisions, "manifest order should be preserved")

	revisions, err = store.ListRevisions(context.Background(), revA, revB)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.Revision{revB}, revisions, "since is exclusive, until inclusive")
}

func TestFileStoreReadJSON(t *testing.T) {
	store, err := NewFileStore(newTestMirror(t), slog.Default())
	require.NoError(t, err)
	ctx := context.Background()

	data, err := store.ReadJSON(ctx, revA, "metadata/targets.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"signed":{"targets":{}}}`, string(data))

	_, err = store.ReadJSON(ctx, revC, "metadata/targets.json")
	assert.ErrorIs(t, err, interfaces.ErrUnavailableAtRevision, "missing document should report unavailability")

	_, err = store.ReadJSON(ctx, revB, "metadata/targets.json")
	assert.ErrorIs(t, err, interfaces.ErrMalformedDocument, "invalid JSON should report malformed document")
}

func TestFileStoreMissingManifest(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), slog.Default())
	require.NoError(t, err)

	_, err = store.ListRevisions(context.Background(), "", "")
	assert.ErrorIs(t, err, interfaces.ErrStoreUnavailable)
}

func TestNewFileStoreRejectsMissingDir(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "nope"), slog.Default())
	assert.Error(t, err)
}

func TestClipRange(t *testing.T) {
	all := []interfaces.Revision{revA, revB, revC}

	assert.Equal(t, all, clipRange(all, "", ""))
	assert.Equal(t, []interfaces.Revision{revB, revC}, clipRange(all, revA, ""))
	assert.Equal(t, []interfaces.Revision{revA, revB}, clipRange(all, "", revB))
	assert.Empty(t, clipRange(all, revC, ""))

	// Unknown bounds leave that end of the range unchanged.
	unknown := interfaces.Revision("dddddddddddddddddddddddddddddddddddddddd")
	assert.Equal(t, all, clipRange(all, unknown, ""))
	assert.Equal(t, all, clipRange(all, "", unknown))
}
