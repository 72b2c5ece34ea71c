package revstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/signet-labs/authrepo-signing-backend/interfaces"
)

// manifestName is the revision manifest file every mirror layout carries.
const manifestName = "manifest.json"

// mirrorManifest lists a mirror's revisions oldest-first.
type mirrorManifest struct {
	Revisions []interfaces.Revision `json:"revisions"`
}

// FileStore reads an authentication repository mirror from the local file
// system. The layout is a manifest.json listing revisions oldest-first and an
// objects/<revision>/<path> tree holding each document as exported at that
// revision.
type FileStore struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileStore creates a file mirror store rooted at baseDir.
func NewFileStore(baseDir string, log *slog.Logger) (*FileStore, error) {
	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mirror path is not a directory: %s", baseDir)
	}

	return &FileStore{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// ListRevisions returns the manifest's revisions, oldest-first, clipped to
// the requested range.
func (s *FileStore) ListRevisions(ctx context.Context, since, until interfaces.Revision) ([]interfaces.Revision, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, manifestName))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read mirror manifest: %v", interfaces.ErrStoreUnavailable, err)
	}

	var manifest mirrorManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid mirror manifest: %w", err)
	}

	return clipRange(manifest.Revisions, since, until), nil
}

// ReadJSON reads a document at a revision from the objects tree.
func (s *FileStore) ReadJSON(ctx context.Context, rev interfaces.Revision, path string) (json.RawMessage, error) {
	filePath := filepath.Join(s.baseDir, "objects", string(rev), filepath.FromSlash(path))

	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s at %s: %w", path, rev.Short(), interfaces.ErrUnavailableAtRevision)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("%s at %s: %w", path, rev.Short(), interfaces.ErrMalformedDocument)
	}

	s.log.Debug("Read document from file mirror",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return json.RawMessage(data), nil
}

// Available checks that the mirror directory still exists.
func (s *FileStore) Available(ctx context.Context) bool {
	_, err := os.Stat(s.baseDir)
	if err != nil {
		s.log.Debug("File mirror unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this store.
func (s *FileStore) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(s.baseDir))
}

// LocationURI returns the URI that identifies this store.
func (s *FileStore) LocationURI() string {
	return s.locationURI
}

// clipRange returns the revisions after since (exclusive) up to until
// (inclusive). Zero values leave the respective end unbounded; an unknown
// bound leaves the list unchanged on that end.
func clipRange(revisions []interfaces.Revision, since, until interfaces.Revision) []interfaces.Revision {
	start := 0
	end := len(revisions)

	if since != "" {
		for i, rev := range revisions {
			if rev == since {
				start = i + 1
				break
			}
		}
	}
	if until != "" {
		for i, rev := range revisions {
			if rev == until {
				end = i + 1
				break
			}
		}
	}

	if start > end {
		return nil
	}
	return revisions[start:end]
}
