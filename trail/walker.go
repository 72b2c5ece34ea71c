// Package trail reconstructs, per dependent repository, the ordered sequence
// of commits the authentication repository pinned it to across its own
// history.
package trail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/signet-labs/authrepo-signing-backend/interfaces"
)

// Timelines maps a target path to the ordered commit sequence recorded for
// it, oldest first. Entries are append-only while a walk runs and never
// mutated afterwards.
type Timelines map[string][]string

// Walker walks an authentication repository's revisions and collects the
// dependent-repository commit pinned at each one. Root metadata lives at
// <MetadataPath>/targets.json; a target descriptor for path p lives at
// <TargetsPath>/p.
type Walker struct {
	MetadataPath string
	TargetsPath  string
	Store        interfaces.RevisionStore
	Log          *slog.Logger
}

// NewWalker creates a walker over the given store with the conventional
// "metadata" and "targets" directory layout.
func NewWalker(store interfaces.RevisionStore, metadataPath, targetsPath string, log *slog.Logger) *Walker {
	if log == nil {
		log = slog.Default()
	}
	return &Walker{
		MetadataPath: metadataPath,
		TargetsPath:  targetsPath,
		Store:        store,
		Log:          log,
	}
}

// targetEntry is one target path with the commit it pins at a revision.
type targetEntry struct {
	path   string
	commit string
}

// Walk processes the revisions in the given order (the caller supplies them
// oldest-first; Walk does not sort) and returns the accumulated timelines.
//
// Missing or malformed root metadata skips the whole revision; a missing or
// malformed target descriptor skips only that path; a descriptor without a
// "commit" field is not a repository pointer and is skipped silently. None of
// these abort the walk. Only a store fault that is neither an availability
// nor a JSON error is returned to the caller.
//
// A commit is appended to a path's timeline only when it differs from the
// immediately previously processed commit, regardless of which path or
// revision that commit belonged to: the comparison carries across target
// paths within a revision and across revision boundaries. So a path pinned
// to the same commit over consecutive revisions is recorded once, and a
// path whose commit matches the one processed just before it in the same
// revision is dropped even on its first appearance. Downstream consumers
// depend on the cross-path half of this; do not narrow it to a per-path
// comparison without a coordinated migration.
func (w *Walker) Walk(ctx context.Context, revisions []interfaces.Revision) (Timelines, error) {
	timelines := make(Timelines)

	var previous *string
	for _, rev := range revisions {
		entries, err := w.targetsAtRevision(ctx, rev)
		if err != nil {
			return nil, err
		}

		for _, entry := range entries {
			if previous == nil || entry.commit != *previous {
				timelines[entry.path] = append(timelines[entry.path], entry.commit)
			}
			commit := entry.commit
			previous = &commit
		}
	}

	return timelines, nil
}

// WalkRange lists the store's revisions in (since, until] and walks them.
func (w *Walker) WalkRange(ctx context.Context, since, until interfaces.Revision) (Timelines, error) {
	revisions, err := w.Store.ListRevisions(ctx, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	return w.Walk(ctx, revisions)
}

// targetsAtRevision reads the root metadata at one revision and resolves each
// declared target path to the commit its descriptor pins, preserving document
// order. Recoverable failures are logged and shrink the result; they never
// propagate.
func (w *Walker) targetsAtRevision(ctx context.Context, rev interfaces.Revision) ([]targetEntry, error) {
	metadataPath := path.Join(w.MetadataPath, "targets.json")

	raw, err := w.Store.ReadJSON(ctx, rev, metadataPath)
	if err != nil {
		if recoverable(err) {
			w.Log.Warn("Skipping revision, root targets metadata unreadable",
				slog.String("revision", rev.Short()),
				slog.String("path", metadataPath),
				"err", err)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s at %s: %w", metadataPath, rev.Short(), err)
	}

	var metadata struct {
		Signed struct {
			Targets json.RawMessage `json:"targets"`
		} `json:"signed"`
	}
	if err := json.Unmarshal(raw, &metadata); err != nil {
		w.Log.Warn("Skipping revision, root targets metadata unreadable",
			slog.String("revision", rev.Short()),
			slog.String("path", metadataPath),
			"err", err)
		return nil, nil
	}

	targetPaths, err := orderedObjectKeys(metadata.Signed.Targets)
	if err != nil {
		w.Log.Warn("Skipping revision, root targets metadata unreadable",
			slog.String("revision", rev.Short()),
			slog.String("path", metadataPath),
			"err", err)
		return nil, nil
	}

	entries := make([]targetEntry, 0, len(targetPaths))
	for _, targetPath := range targetPaths {
		descriptorPath := path.Join(w.TargetsPath, targetPath)

		raw, err := w.Store.ReadJSON(ctx, rev, descriptorPath)
		if err != nil {
			if recoverable(err) {
				w.Log.Warn("Skipping target path at revision",
					slog.String("revision", rev.Short()),
					slog.String("targetPath", targetPath),
					"err", err)
				continue
			}
			return nil, fmt.Errorf("failed to read %s at %s: %w", descriptorPath, rev.Short(), err)
		}

		var descriptor struct {
			Commit *string `json:"commit"`
		}
		if err := json.Unmarshal(raw, &descriptor); err != nil {
			w.Log.Warn("Skipping target path at revision",
				slog.String("revision", rev.Short()),
				slog.String("targetPath", targetPath),
				"err", err)
			continue
		}

		// Not a repository pointer.
		if descriptor.Commit == nil {
			continue
		}

		entries = append(entries, targetEntry{path: targetPath, commit: *descriptor.Commit})
	}

	return entries, nil
}

// recoverable reports whether a store error only suppresses one unit of work
// instead of aborting the walk.
func recoverable(err error) bool {
	return errors.Is(err, interfaces.ErrUnavailableAtRevision) ||
		errors.Is(err, interfaces.ErrMalformedDocument)
}

// orderedObjectKeys returns the keys of a JSON object in document order.
// encoding/json map decoding would lose the order the metadata declares its
// target paths in, and the walk's dedup depends on it.
func orderedObjectKeys(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, errors.New("missing targets object")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("targets is not a JSON object")
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.New("unexpected token in targets object")
		}
		keys = append(keys, key)

		// Skip the value.
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
	}

	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}

	return keys, nil
}
