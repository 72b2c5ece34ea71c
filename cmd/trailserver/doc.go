// Package main (cmd/trailserver) serves dependent-repository commit
// timelines over HTTP.
//
// The server exposes a read-only API backed by one or more revision
// store mirrors:
//
//	GET /api/public/timelines  - per-target commit timelines, optional since/until
//	GET /api/public/revisions  - revision hashes in range, oldest first
//
// Health endpoints (/livez, /readyz, /drain, /undrain) support rolling
// deployments; /debug exposes pprof when enabled.
//
// Example usage:
//
//	trailserver --listen-addr 0.0.0.0:8080 \
//	    --store github://example/auth-repo \
//	    --store dns://mirrors.example.org
package main
