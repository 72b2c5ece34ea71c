// Package main (cmd/trail) walks an authentication repository's revision
// history and prints, per dependent repository, the ordered sequence of
// commits it was pinned to.
//
// Mirrors are given as --store URIs and tried in order; content-level
// answers from an earlier mirror are authoritative, only mirror faults
// fall through to the next one. A dns:// URI expands into the mirror
// list published in the domain's TXT records.
//
// Example usage:
//
//	trail --store github://example/auth-repo \
//	    --store file:///var/lib/auth-repo-mirror \
//	    --since 0123456789abcdef0123456789abcdef01234567
package main
