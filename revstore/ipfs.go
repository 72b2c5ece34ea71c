package revstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/signet-labs/authrepo-signing-backend/interfaces"
)

// IPFSStore reads an authentication repository mirror pinned to IPFS. The
// manifest object maps each revision to the root CID of that revision's
// tree; documents resolve as /ipfs/<root>/<path>, so a mirrored tree keeps
// git's directory structure.
type IPFSStore struct {
	shell       *shell.Shell
	host        string
	port        string
	manifestCID string
	log         *slog.Logger
	locationURI string
}

// ipfsManifest lists the mirrored revisions oldest-first with their tree
// root CIDs.
type ipfsManifest struct {
	Revisions []struct {
		Revision interfaces.Revision `json:"revision"`
		Root     string              `json:"root"`
	} `json:"revisions"`
}

// NewIPFSStore creates an IPFS mirror store talking to the node API at
// host:port. The manifestCID addresses the mirror manifest object.
func NewIPFSStore(host, port, manifestCID string, log *slog.Logger) (*IPFSStore, error) {
	if manifestCID == "" {
		return nil, fmt.Errorf("ipfs store requires a manifest CID")
	}

	apiURL := fmt.Sprintf("%s:%s", host, port)

	return &IPFSStore{
		shell:       shell.NewShell(apiURL),
		host:        host,
		port:        port,
		manifestCID: manifestCID,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s/?manifest=%s", apiURL, manifestCID),
	}, nil
}

// ListRevisions reads the manifest object and returns its revisions clipped
// to the requested range.
func (s *IPFSStore) ListRevisions(ctx context.Context, since, until interfaces.Revision) ([]interfaces.Revision, error) {
	manifest, err := s.readManifest()
	if err != nil {
		return nil, err
	}

	revisions := make([]interfaces.Revision, 0, len(manifest.Revisions))
	for _, entry := range manifest.Revisions {
		revisions = append(revisions, entry.Revision)
	}

	return clipRange(revisions, since, until), nil
}

// ReadJSON resolves a document below the revision's tree root.
func (s *IPFSStore) ReadJSON(ctx context.Context, rev interfaces.Revision, path string) (json.RawMessage, error) {
	start := time.Now()

	if !s.shell.IsUp() {
		return nil, fmt.Errorf("%w: IPFS node at %s:%s not reachable", interfaces.ErrStoreUnavailable, s.host, s.port)
	}

	manifest, err := s.readManifest()
	if err != nil {
		return nil, err
	}

	var root string
	for _, entry := range manifest.Revisions {
		if entry.Revision == rev {
			root = entry.Root
			break
		}
	}
	if root == "" {
		return nil, fmt.Errorf("revision %s not in mirror: %w", rev.Short(), interfaces.ErrUnavailableAtRevision)
	}

	ipfsPath := fmt.Sprintf("/ipfs/%s/%s", root, path)
	reader, err := s.shell.Cat(ipfsPath)
	if err != nil {
		if strings.Contains(err.Error(), "no link named") || strings.Contains(err.Error(), "file does not exist") {
			return nil, fmt.Errorf("%s at %s: %w", path, rev.Short(), interfaces.ErrUnavailableAtRevision)
		}
		return nil, fmt.Errorf("failed to fetch %s from IPFS: %w", ipfsPath, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("%s at %s: %w", path, rev.Short(), interfaces.ErrMalformedDocument)
	}

	s.log.Debug("Fetched document from IPFS",
		slog.String("path", ipfsPath),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return json.RawMessage(data), nil
}

// Available checks if the IPFS node is accessible.
func (s *IPFSStore) Available(ctx context.Context) bool {
	return s.shell.IsUp()
}

// Name returns a unique identifier for this store.
func (s *IPFSStore) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", s.host, s.port)
}

// LocationURI returns the URI that identifies this store.
func (s *IPFSStore) LocationURI() string {
	return s.locationURI
}

func (s *IPFSStore) readManifest() (*ipfsManifest, error) {
	reader, err := s.shell.Cat("/ipfs/" + s.manifestCID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read mirror manifest: %v", interfaces.ErrStoreUnavailable, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read mirror manifest: %w", err)
	}

	var manifest ipfsManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid mirror manifest: %w", err)
	}
	return &manifest, nil
}
