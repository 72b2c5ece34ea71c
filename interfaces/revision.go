package interfaces

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Revision is an opaque commit identifier in an authentication repository.
// Revisions are ordered only by the sequence a RevisionStore returns them in.
type Revision string

// NewRevisionFromHex validates a 40-character hex commit hash.
func NewRevisionFromHex(s string) (Revision, error) {
	if len(s) != 40 {
		return "", errors.New("invalid revision: hex string must be 40 characters")
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("invalid revision hex format: %w", err)
	}
	return Revision(s), nil
}

// String returns the revision as a hex string.
func (r Revision) String() string {
	return string(r)
}

// Short returns the abbreviated revision used in logs.
func (r Revision) Short() string {
	if len(r) < 8 {
		return string(r)
	}
	return string(r[:8])
}

var (
	// ErrUnavailableAtRevision is returned when a document does not exist at
	// the requested revision. A typical cause is an initial commit that
	// predates the repository's metadata.
	ErrUnavailableAtRevision = errors.New("document not available at revision")

	// ErrMalformedDocument is returned when a document exists at the
	// requested revision but is not valid JSON.
	ErrMalformedDocument = errors.New("document is not valid JSON")

	// ErrStoreUnavailable is returned when a revision store backend is not
	// accessible. This could be due to network issues, authentication
	// failures, or service outages.
	ErrStoreUnavailable = errors.New("revision store unavailable")

	// ErrInvalidLocationURI is returned when a mirror location URI cannot be
	// parsed or uses an unsupported scheme.
	ErrInvalidLocationURI = errors.New("invalid mirror location URI")
)

// StoreLocation is a URI identifying a revision store mirror, for example
// github://owner/repo or file:///var/lib/mirror.
type StoreLocation string

// RevisionStore provides read access to an authentication repository's commit
// history and to the JSON documents recorded at each revision.
type RevisionStore interface {
	// ListRevisions returns revisions ordered oldest-first. A zero-value
	// since or until leaves that end of the range unbounded; since is
	// exclusive, until inclusive.
	ListRevisions(ctx context.Context, since, until Revision) ([]Revision, error)

	// ReadJSON returns the raw JSON document at the given repository-relative
	// path and revision. It returns ErrUnavailableAtRevision if no document
	// exists there at that revision, and ErrMalformedDocument if the stored
	// bytes are not valid JSON. Any other error indicates a store fault.
	ReadJSON(ctx context.Context, rev Revision, path string) (json.RawMessage, error)

	// Available checks if the store is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this store.
	LocationURI() string
}
