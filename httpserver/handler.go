package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/signet-labs/authrepo-signing-backend/interfaces"
	"github.com/signet-labs/authrepo-signing-backend/trail"
)

// Handler serves read-only trail queries against a single revision store.
type Handler struct {
	store  interfaces.RevisionStore
	walker *trail.Walker
	log    *slog.Logger
}

// NewHandler creates a handler over the given store with the conventional
// metadata and targets layout.
func NewHandler(store interfaces.RevisionStore, metadataPath, targetsPath string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		store:  store,
		walker: trail.NewWalker(store, metadataPath, targetsPath, log),
		log:    log,
	}
}

// revisionRange parses the optional since and until query parameters. An
// absent parameter leaves that end of the range unbounded.
func revisionRange(r *http.Request) (since, until interfaces.Revision, err error) {
	if s := r.URL.Query().Get("since"); s != "" {
		since, err = interfaces.NewRevisionFromHex(s)
		if err != nil {
			return "", "", err
		}
	}
	if u := r.URL.Query().Get("until"); u != "" {
		until, err = interfaces.NewRevisionFromHex(u)
		if err != nil {
			return "", "", err
		}
	}
	return since, until, nil
}

// HandleTimelines walks the requested revision range and returns the
// per-target commit timelines as JSON.
func (h *Handler) HandleTimelines(w http.ResponseWriter, r *http.Request) {
	since, until, err := revisionRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	timelines, err := h.walker.WalkRange(r.Context(), since, until)
	if err != nil {
		h.log.Error("Timeline walk failed", "err", err)
		if errors.Is(err, interfaces.ErrStoreUnavailable) {
			http.Error(w, "revision store unavailable", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.log, timelines)
}

// HandleRevisions returns the revision hashes in the requested range,
// oldest first.
func (h *Handler) HandleRevisions(w http.ResponseWriter, r *http.Request) {
	since, until, err := revisionRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	revisions, err := h.store.ListRevisions(r.Context(), since, until)
	if err != nil {
		h.log.Error("Listing revisions failed", "err", err)
		if errors.Is(err, interfaces.ErrStoreUnavailable) {
			http.Error(w, "revision store unavailable", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	hashes := make([]string, 0, len(revisions))
	for _, rev := range revisions {
		hashes = append(hashes, rev.String())
	}
	writeJSON(w, h.log, hashes)
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Writing response failed", "err", err)
	}
}
