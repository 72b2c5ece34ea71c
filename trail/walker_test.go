package trail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/signet-labs/authrepo-signing-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore serves documents from an in-memory map keyed by revision and
// path. Missing documents report ErrUnavailableAtRevision; a document set to
// the literal "!" reports ErrMalformedDocument; a document set to "#" fails
// with a store fault.
type fakeStore struct {
	revisions []interfaces.Revision
	documents map[interfaces.Revision]map[string]string
}

var errStoreFault = errors.New("disk exploded")

func (s *fakeStore) ListRevisions(ctx context.Context, since, until interfaces.Revision) ([]interfaces.Revision, error) {
	return s.revisions, nil
}

func (s *fakeStore) ReadJSON(ctx context.Context, rev interfaces.Revision, path string) (json.RawMessage, error) {
	doc, ok := s.documents[rev][path]
	if !ok {
		return nil, fmt.Errorf("%s at %s: %w", path, rev, interfaces.ErrUnavailableAtRevision)
	}
	switch doc {
	case "!":
		return nil, fmt.Errorf("%s at %s: %w", path, rev, interfaces.ErrMalformedDocument)
	case "#":
		return nil, errStoreFault
	}
	return json.RawMessage(doc), nil
}

func (s *fakeStore) Available(ctx context.Context) bool { return true }
func (s *fakeStore) Name() string                       { return "fake" }
func (s *fakeStore) LocationURI() string                { return "fake://" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// rootMetadata builds a targets.json document declaring the given target
// paths in the given order.
func rootMetadata(paths ...string) string {
	doc := `{"signed":{"targets":{`
	for i, p := range paths {
		if i > 0 {
			doc += ","
		}
		doc += fmt.Sprintf(`%q:{}`, p)
	}
	return doc + `}}}`
}

func descriptor(commit string) string {
	return fmt.Sprintf(`{"commit":%q}`, commit)
}

func TestWalk_SingleTargetAcrossRevisions(t *testing.T) {
	store := &fakeStore{
		revisions: []interfaces.Revision{"r1", "r2", "r3"},
		documents: map[interfaces.Revision]map[string]string{
			"r1": {
				"metadata/targets.json": rootMetadata("repos/a"),
				"targets/repos/a":       descriptor("c1"),
			},
			"r2": {
				"metadata/targets.json": rootMetadata("repos/a"),
				"targets/repos/a":       descriptor("c1"),
			},
			"r3": {
				"metadata/targets.json": rootMetadata("repos/a"),
				"targets/repos/a":       descriptor("c2"),
			},
		},
	}

	walker := NewWalker(store, "metadata", "targets", testLogger())
	timelines, err := walker.Walk(context.Background(), store.revisions)
	require.NoError(t, err)

	// Consecutive duplicates across revisions collapse for a path observed
	// alone.
	assert.Equal(t, Timelines{"repos/a": {"c1", "c2"}}, timelines)
}

func TestWalk_DedupIsScopedToRevisionNotPath(t *testing.T) {
	store := &fakeStore{
		revisions: []interfaces.Revision{"r1"},
		documents: map[interfaces.Revision]map[string]string{
			"r1": {
				"metadata/targets.json": rootMetadata("repos/a", "repos/b"),
				"targets/repos/a":       descriptor("c1"),
				"targets/repos/b":       descriptor("c1"),
			},
		},
	}

	walker := NewWalker(store, "metadata", "targets", testLogger())
	timelines, err := walker.Walk(context.Background(), store.revisions)
	require.NoError(t, err)

	// The second path's commit matches the one processed just before it
	// within the same revision, so it is dropped even though repos/b has no
	// history of its own yet. Documented behavior; see Walk.
	assert.Equal(t, []string{"c1"}, timelines["repos/a"])
	assert.NotContains(t, timelines, "repos/b")
}

func TestWalk_DedupCarriesAcrossRevisionBoundaries(t *testing.T) {
	// The previously processed commit is not reset between revisions: a
	// path whose commit matches the last one recorded at the preceding
	// revision is dropped, even when the paths differ.
	store := &fakeStore{
		revisions: []interfaces.Revision{"r1", "r2", "r3"},
		documents: map[interfaces.Revision]map[string]string{
			"r1": {
				"metadata/targets.json": rootMetadata("repos/a"),
				"targets/repos/a":       descriptor("c1"),
			},
			"r2": {
				"metadata/targets.json": rootMetadata("repos/b"),
				"targets/repos/b":       descriptor("c1"),
			},
			"r3": {
				"metadata/targets.json": rootMetadata("repos/a"),
				"targets/repos/a":       descriptor("c1"),
			},
		},
	}

	walker := NewWalker(store, "metadata", "targets", testLogger())
	timelines, err := walker.Walk(context.Background(), store.revisions)
	require.NoError(t, err)

	assert.Equal(t, []string{"c1"}, timelines["repos/a"])
	assert.NotContains(t, timelines, "repos/b")
}

func TestWalk_DifferingCommitsWithinRevisionAllRecorded(t *testing.T) {
	store := &fakeStore{
		revisions: []interfaces.Revision{"r1"},
		documents: map[interfaces.Revision]map[string]string{
			"r1": {
				"metadata/targets.json": rootMetadata("repos/a", "repos/b"),
				"targets/repos/a":       descriptor("c1"),
				"targets/repos/b":       descriptor("c2"),
			},
		},
	}

	walker := NewWalker(store, "metadata", "targets", testLogger())
	timelines, err := walker.Walk(context.Background(), store.revisions)
	require.NoError(t, err)

	assert.Equal(t, []string{"c1"}, timelines["repos/a"])
	assert.Equal(t, []string{"c2"}, timelines["repos/b"])
}

func TestWalk_SkipsRevisionsWithMissingOrMalformedRootMetadata(t *testing.T) {
	store := &fakeStore{
		revisions: []interfaces.Revision{"r0", "r1", "r2", "r3"},
		documents: map[interfaces.Revision]map[string]string{
			// r0 predates metadata entirely.
			"r0": {},
			"r1": {
				"metadata/targets.json": rootMetadata("repos/a"),
				"targets/repos/a":       descriptor("c1"),
			},
			"r2": {
				"metadata/targets.json": "!",
			},
			"r3": {
				"metadata/targets.json": rootMetadata("repos/a"),
				"targets/repos/a":       descriptor("c2"),
			},
		},
	}

	walker := NewWalker(store, "metadata", "targets", testLogger())
	timelines, err := walker.Walk(context.Background(), store.revisions)
	require.NoError(t, err, "recoverable failures must not abort the walk")

	assert.Equal(t, []string{"c1", "c2"}, timelines["repos/a"])
}

func TestWalk_SkipsOnlyTheFailingTargetPath(t *testing.T) {
	store := &fakeStore{
		revisions: []interfaces.Revision{"r1"},
		documents: map[interfaces.Revision]map[string]string{
			"r1": {
				"metadata/targets.json": rootMetadata("repos/a", "repos/b", "repos/c"),
				// repos/a descriptor missing, repos/b malformed.
				"targets/repos/b": "!",
				"targets/repos/c": descriptor("c3"),
			},
		},
	}

	walker := NewWalker(store, "metadata", "targets", testLogger())
	timelines, err := walker.Walk(context.Background(), store.revisions)
	require.NoError(t, err)

	assert.NotContains(t, timelines, "repos/a")
	assert.NotContains(t, timelines, "repos/b")
	assert.Equal(t, []string{"c3"}, timelines["repos/c"])
}

func TestWalk_DescriptorWithoutCommitIsSilentlySkipped(t *testing.T) {
	store := &fakeStore{
		revisions: []interfaces.Revision{"r1"},
		documents: map[interfaces.Revision]map[string]string{
			"r1": {
				"metadata/targets.json": rootMetadata("docs/readme", "repos/a"),
				"targets/docs/readme":   `{"sha256":"abc"}`,
				"targets/repos/a":       descriptor("c1"),
			},
		},
	}

	walker := NewWalker(store, "metadata", "targets", testLogger())
	timelines, err := walker.Walk(context.Background(), store.revisions)
	require.NoError(t, err)

	assert.NotContains(t, timelines, "docs/readme")
	assert.Equal(t, []string{"c1"}, timelines["repos/a"])
}

func TestWalk_NonRepositoryPathDoesNotParticipateInDedup(t *testing.T) {
	// docs/readme sits between the two repo pointers in document order but
	// carries no commit, so repos/a and repos/b are compared directly.
	store := &fakeStore{
		revisions: []interfaces.Revision{"r1"},
		documents: map[interfaces.Revision]map[string]string{
			"r1": {
				"metadata/targets.json": rootMetadata("repos/a", "docs/readme", "repos/b"),
				"targets/repos/a":       descriptor("c1"),
				"targets/docs/readme":   `{}`,
				"targets/repos/b":       descriptor("c1"),
			},
		},
	}

	walker := NewWalker(store, "metadata", "targets", testLogger())
	timelines, err := walker.Walk(context.Background(), store.revisions)
	require.NoError(t, err)

	assert.Equal(t, []string{"c1"}, timelines["repos/a"])
	assert.NotContains(t, timelines, "repos/b")
}

func TestWalk_StoreFaultAborts(t *testing.T) {
	store := &fakeStore{
		revisions: []interfaces.Revision{"r1"},
		documents: map[interfaces.Revision]map[string]string{
			"r1": {
				"metadata/targets.json": "#",
			},
		},
	}

	walker := NewWalker(store, "metadata", "targets", testLogger())
	_, err := walker.Walk(context.Background(), store.revisions)
	require.ErrorIs(t, err, errStoreFault, "a non-availability, non-JSON store error must propagate")
}

func TestWalk_TargetPathDocumentOrderPreserved(t *testing.T) {
	// Declaration order differs from lexical order; the walk must follow the
	// document, not a sorted map.
	store := &fakeStore{
		revisions: []interfaces.Revision{"r1"},
		documents: map[interfaces.Revision]map[string]string{
			"r1": {
				"metadata/targets.json": rootMetadata("repos/z", "repos/a"),
				"targets/repos/z":       descriptor("c1"),
				"targets/repos/a":       descriptor("c1"),
			},
		},
	}

	walker := NewWalker(store, "metadata", "targets", testLogger())
	timelines, err := walker.Walk(context.Background(), store.revisions)
	require.NoError(t, err)

	// repos/z was declared first, so it wins and repos/a collapses into it.
	assert.Equal(t, []string{"c1"}, timelines["repos/z"])
	assert.NotContains(t, timelines, "repos/a")
}

func TestWalkRange_UsesStoreOrdering(t *testing.T) {
	store := &fakeStore{
		revisions: []interfaces.Revision{"r1", "r2"},
		documents: map[interfaces.Revision]map[string]string{
			"r1": {
				"metadata/targets.json": rootMetadata("repos/a"),
				"targets/repos/a":       descriptor("c1"),
			},
			"r2": {
				"metadata/targets.json": rootMetadata("repos/a"),
				"targets/repos/a":       descriptor("c2"),
			},
		},
	}

	walker := NewWalker(store, "metadata", "targets", testLogger())
	timelines, err := walker.WalkRange(context.Background(), "", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"c1", "c2"}, timelines["repos/a"])
}

func TestOrderedObjectKeys(t *testing.T) {
	keys, err := orderedObjectKeys(json.RawMessage(`{"b":{},"a":1,"z":[1,2]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "z"}, keys)

	_, err = orderedObjectKeys(json.RawMessage(`[1,2]`))
	assert.Error(t, err, "non-object targets must be rejected")

	_, err = orderedObjectKeys(nil)
	assert.Error(t, err)
}
