// Package httpserver exposes the metadata trail over a small read-only
// HTTP API.
//
// Endpoints:
//
//	GET /api/public/timelines   - walk the configured revision store and
//	                              return the dependent-repository timelines
//	GET /api/public/revisions   - list the store's revisions oldest-first
//	GET /livez, /readyz         - health probes
//	GET /drain, /undrain        - readiness toggling for rollouts
//
// Both public endpoints accept optional since/until query parameters
// holding revision hashes to bound the walked range.
//
// The server carries no write surface; provisioning and signing are
// strictly CLI and hardware-bound operations.
package httpserver
