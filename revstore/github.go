package revstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/signet-labs/authrepo-signing-backend/interfaces"
)

// GitHubStore reads an authentication repository's history through GitHub's
// REST API, without a local clone. Revisions come from the commits endpoint
// and documents from the contents endpoint at a given ref.
type GitHubStore struct {
	owner       string
	repo        string
	ref         string
	client      *http.Client
	log         *slog.Logger
	locationURI string
}

// githubCommit is the subset of the commits API response we consume.
type githubCommit struct {
	SHA string `json:"sha"`
}

// githubContent is the subset of the contents API response we consume.
type githubContent struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// NewGitHubStore creates a read-only store for github.com/owner/repo. The ref
// names the branch whose history is walked; empty means the repository
// default.
func NewGitHubStore(owner, repo, ref string, log *slog.Logger) *GitHubStore {
	return &GitHubStore{
		owner:       owner,
		repo:        repo,
		ref:         ref,
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         log,
		locationURI: fmt.Sprintf("github://%s/%s", owner, repo),
	}
}

// ListRevisions pages through the commits API and returns the full history
// oldest-first, clipped to the requested range.
func (s *GitHubStore) ListRevisions(ctx context.Context, since, until interfaces.Revision) ([]interfaces.Revision, error) {
	var newestFirst []interfaces.Revision

	for page := 1; ; page++ {
		endpoint := fmt.Sprintf("https://api.github.com/repos/%s/%s/commits?per_page=100&page=%d",
			s.owner, s.repo, page)
		if s.ref != "" {
			endpoint += "&sha=" + url.QueryEscape(s.ref)
		}

		body, err := s.get(ctx, endpoint)
		if err != nil {
			return nil, err
		}

		var commits []githubCommit
		if err := json.Unmarshal(body, &commits); err != nil {
			return nil, fmt.Errorf("failed to decode commits response: %w", err)
		}
		if len(commits) == 0 {
			break
		}

		for _, c := range commits {
			newestFirst = append(newestFirst, interfaces.Revision(c.SHA))
		}
		if len(commits) < 100 {
			break
		}
	}

	// The API returns newest-first; the walk wants oldest-first.
	oldestFirst := make([]interfaces.Revision, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		oldestFirst = append(oldestFirst, newestFirst[i])
	}

	s.log.Debug("Listed revisions from GitHub",
		slog.String("repo", s.owner+"/"+s.repo),
		slog.Int("count", len(oldestFirst)))

	return clipRange(oldestFirst, since, until), nil
}

// ReadJSON fetches a repository file at a revision via the contents API.
func (s *GitHubStore) ReadJSON(ctx context.Context, rev interfaces.Revision, path string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("https://api.github.com/repos/%s/%s/contents/%s?ref=%s",
		s.owner, s.repo, url.PathEscape(path), url.QueryEscape(string(rev)))

	body, err := s.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var content githubContent
	if err := json.Unmarshal(body, &content); err != nil {
		return nil, fmt.Errorf("failed to decode contents response: %w", err)
	}
	if content.Encoding != "base64" {
		return nil, fmt.Errorf("unexpected content encoding: %s", content.Encoding)
	}

	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("%s at %s: %w", path, rev.Short(), interfaces.ErrMalformedDocument)
	}

	s.log.Debug("Fetched document from GitHub",
		slog.String("path", path),
		slog.String("revision", rev.Short()),
		slog.Int("size", len(data)))

	return json.RawMessage(data), nil
}

// Available checks if the repository is reachable through the API.
func (s *GitHubStore) Available(ctx context.Context) bool {
	endpoint := fmt.Sprintf("https://api.github.com/repos/%s/%s", s.owner, s.repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		s.log.Debug("Failed to create request", "err", err)
		return false
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Debug("GitHub store unavailable", "err", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.log.Debug("GitHub store unavailable", slog.String("status", resp.Status))
		return false
	}

	return true
}

// Name returns a unique identifier for this store.
func (s *GitHubStore) Name() string {
	return fmt.Sprintf("github-%s-%s", s.owner, s.repo)
}

// LocationURI returns the URI that identifies this store.
func (s *GitHubStore) LocationURI() string {
	return s.locationURI
}

// get issues one API request and maps HTTP statuses onto the store's error
// contract.
func (s *GitHubStore) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, interfaces.ErrUnavailableAtRevision
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GitHub API error: %s, %s", resp.Status, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
