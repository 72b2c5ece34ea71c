// Package revstore provides interfaces.RevisionStore implementations for the
// places an authentication repository's history can be read from.
//
// Backends:
//
//   - GitHubStore: reads commit history and per-revision files directly from
//     GitHub's REST API (github://owner/repo?ref=branch).
//   - FileStore: reads an exported local mirror, a manifest of revisions plus
//     an objects/<revision>/<path> tree (file:///dir).
//   - S3Store: the same mirror layout in an S3 or S3-compatible bucket
//     (s3://bucket/prefix?region=...).
//   - IPFSStore: a manifest mapping each revision to the root CID of its
//     tree, with documents resolved below that root (ipfs://host:port).
//   - MultiStore: failover across several mirrors of the same repository.
//
// The Factory creates stores from location URIs and can expand dns://domain
// locations into concrete mirror URIs published in DNS TXT records.
//
// All backends map "document missing at revision" to
// interfaces.ErrUnavailableAtRevision and "present but not JSON" to
// interfaces.ErrMalformedDocument so the trail walker can recover from both.
package revstore
