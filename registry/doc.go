// Package registry decides which public keys may sign for a metadata role.
//
// The authoritative source is the repository's root metadata document,
// which lists every key the repository trusts and maps role names to key
// identifiers. MetadataSignerRegistry reads that document at the newest
// available revision through an interfaces.RevisionStore, so authorization
// always reflects the repository's current trust state rather than a local
// cache.
//
// Key material is compared as PEM text. Comparison tolerates a missing or
// extra trailing newline, since exporters disagree on whether PEM blocks
// end with one.
//
// A testify-based MockSignerRegistry is provided for packages that need to
// script authorization decisions in tests.
package registry
