package revstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/signet-labs/authrepo-signing-backend/interfaces"
)

// MultiStore implements interfaces.RevisionStore over multiple mirrors
// with fallback. Content-level answers are authoritative: if a mirror
// reports a document missing or malformed at a revision, that is the
// state of the repository and no other mirror is consulted. Only store
// faults (network, auth, quota) fall through to the next mirror.
type MultiStore struct {
	stores []interfaces.RevisionStore
	log    *slog.Logger
}

// NewMultiStore creates a revision store with mirror fallback.
func NewMultiStore(stores []interfaces.RevisionStore, logger *slog.Logger) *MultiStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStore{
		stores: stores,
		log:    logger,
	}
}

// ListRevisions returns the revision range from the first mirror that
// answers.
func (m *MultiStore) ListRevisions(ctx context.Context, since, until interfaces.Revision) ([]interfaces.Revision, error) {
	start := time.Now()
	var errs []error

	for _, store := range m.stores {
		if !store.Available(ctx) {
			m.log.Debug("Mirror unavailable", slog.String("store_name", store.Name()))
			continue
		}

		revisions, err := store.ListRevisions(ctx, since, until)
		if err == nil {
			m.log.Debug("Listed revisions",
				slog.String("store_name", store.Name()),
				slog.Int("count", len(revisions)),
				slog.Duration("duration", time.Since(start)))
			return revisions, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", store.Name(), err))
		m.log.Debug("Failed to list revisions from mirror",
			slog.String("store_name", store.Name()),
			"err", err)
	}

	m.log.Error("All mirrors failed to list revisions",
		slog.Int("failed_stores", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return nil, fmt.Errorf("%w: all mirrors failed to list revisions: %v", interfaces.ErrStoreUnavailable, errs)
}

// ReadJSON fetches a document from the first mirror that gives an
// authoritative answer, faulty mirrors are skipped.
func (m *MultiStore) ReadJSON(ctx context.Context, rev interfaces.Revision, path string) (json.RawMessage, error) {
	start := time.Now()
	var errs []error

	for _, store := range m.stores {
		if !store.Available(ctx) {
			m.log.Debug("Mirror unavailable",
				slog.String("store_name", store.Name()),
				slog.String("revision", rev.Short()))
			continue
		}

		data, err := store.ReadJSON(ctx, rev, path)
		if err == nil {
			m.log.Debug("Fetched document",
				slog.String("store_name", store.Name()),
				slog.String("revision", rev.Short()),
				slog.String("path", path),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		// A mirror that has the revision but not the document, or holds
		// an invalid one, speaks for the repository itself.
		if errors.Is(err, interfaces.ErrUnavailableAtRevision) || errors.Is(err, interfaces.ErrMalformedDocument) {
			return nil, err
		}

		errs = append(errs, fmt.Errorf("%s: %w", store.Name(), err))
		m.log.Debug("Failed to fetch from mirror",
			slog.String("store_name", store.Name()),
			slog.String("revision", rev.Short()),
			slog.String("path", path),
			"err", err)
	}

	m.log.Error("All mirrors failed to fetch document",
		slog.String("revision", rev.Short()),
		slog.String("path", path),
		slog.Int("failed_stores", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return nil, fmt.Errorf("%w: all mirrors failed to fetch %s at %s: %v", interfaces.ErrStoreUnavailable, path, rev.Short(), errs)
}

// Available checks if any mirror is available.
func (m *MultiStore) Available(ctx context.Context) bool {
	for _, store := range m.stores {
		if store.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this store.
func (m *MultiStore) Name() string {
	return "multi-store"
}

// LocationURI returns a combined URI of all mirrors.
func (m *MultiStore) LocationURI() string {
	var locations []string
	for _, store := range m.stores {
		locations = append(locations, store.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
