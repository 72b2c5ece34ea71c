package revstore

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/signet-labs/authrepo-signing-backend/interfaces"
)

// Factory creates revision stores from URI strings and assembles
// multi-mirror configurations.
type Factory struct {
	log      *slog.Logger
	resolver *MirrorResolver
}

// NewFactory creates a factory instance. If resolver is nil, dns://
// locations cannot be expanded.
func NewFactory(logger *slog.Logger, resolver *MirrorResolver) *Factory {
	return &Factory{
		log:      logger,
		resolver: resolver,
	}
}

// StoreFor creates a revision store from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:// - Local filesystem mirror
//   - s3:// - Amazon S3 or compatible object storage mirror
//   - ipfs:// - IPFS pinned mirror
//   - github:// - Read-only access through the GitHub REST API
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (f *Factory) StoreFor(location interfaces.StoreLocation) (interfaces.RevisionStore, error) {
	u, err := url.Parse(string(location))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "github":
		return f.createGitHubStore(u)
	case "ipfs":
		return f.createIPFSStore(u)
	case "s3":
		return f.createS3Store(u)
	case "file":
		return f.createFileStore(u)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %s", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

// CreateMultiStore creates a multi-mirror store from a list of location
// URIs. dns:// locations are expanded into the mirror lists published in
// their TXT records before store construction. Invalid locations are
// logged and skipped; an error is returned only when no store could be
// created at all.
func (f *Factory) CreateMultiStore(locations []interfaces.StoreLocation) (interfaces.RevisionStore, error) {
	expanded := make([]interfaces.StoreLocation, 0, len(locations))
	for _, location := range locations {
		if !strings.HasPrefix(strings.ToLower(string(location)), "dns://") {
			expanded = append(expanded, location)
			continue
		}

		if f.resolver == nil {
			f.log.Warn("No mirror resolver configured, skipping DNS location",
				slog.String("locationURI", string(location)))
			continue
		}

		resolved, err := f.resolver.Resolve(string(location))
		if err != nil {
			f.log.Warn("Failed to resolve DNS mirror location",
				"err", err,
				slog.String("locationURI", string(location)))
			continue
		}
		expanded = append(expanded, resolved...)
	}

	stores := make([]interfaces.RevisionStore, 0, len(expanded))
	for _, location := range expanded {
		store, err := f.StoreFor(location)
		if err != nil {
			f.log.Warn("Failed to create revision store",
				"err", err,
				slog.String("locationURI", string(location)))
			continue
		}
		stores = append(stores, store)
	}

	if len(stores) == 0 {
		return nil, fmt.Errorf("no valid revision stores created")
	}

	return NewMultiStore(stores, f.log), nil
}

// createGitHubStore creates a read-only GitHub revision store.
// URI format: github://owner/repo[?ref=branch]
func (f *Factory) createGitHubStore(u *url.URL) (interfaces.RevisionStore, error) {
	f.log.Debug("Creating GitHub store", slog.String("uri", u.String()))

	owner := u.Host
	repo := strings.Trim(u.Path, "/")
	if owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("%w: expected github://owner/repo", interfaces.ErrInvalidLocationURI)
	}

	ref := u.Query().Get("ref")

	return NewGitHubStore(owner, repo, ref, f.log), nil
}

// createIPFSStore creates an IPFS mirror store.
// URI format: ipfs://host:port/?manifest=CID
func (f *Factory) createIPFSStore(u *url.URL) (interfaces.RevisionStore, error) {
	f.log.Debug("Creating IPFS store", slog.String("uri", u.String()))

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "5001" // Default IPFS API port
	}

	manifestCID := u.Query().Get("manifest")

	return NewIPFSStore(host, port, manifestCID, f.log)
}

// createS3Store creates an S3 or S3-compatible mirror store.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/prefix/?region=us-west-2&endpoint=custom.s3.com
func (f *Factory) createS3Store(u *url.URL) (interfaces.RevisionStore, error) {
	f.log.Debug("Creating S3 store", slog.String("uri", u.String()))

	bucketName := u.Host
	prefix := strings.TrimPrefix(u.Path, "/")

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1" // Default region
	}
	endpoint := query.Get("endpoint")

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
		f.log.Debug("Using embedded credentials for S3 access")
	} else {
		f.log.Debug("No credentials provided, S3 bucket assumed to be public")
	}

	return NewS3Store(bucketName, prefix, region, endpoint, accessKey, secretKey, f.log)
}

// createFileStore creates a filesystem mirror store.
// URI format: file:///absolute/path/ or file://./relative/path/
func (f *Factory) createFileStore(u *url.URL) (interfaces.RevisionStore, error) {
	f.log.Debug("Creating file store", slog.String("uri", u.String()))

	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %s", interfaces.ErrInvalidLocationURI, u.String())
	}

	return NewFileStore(path, f.log)
}
