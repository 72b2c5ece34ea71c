// Package hsm drives hardware signing tokens over the PIV applet.
//
// The package is organized around a small set of collaborators:
//
//   - Transport and Token abstract the smart-card layer. The production
//     adapter sits on github.com/go-piv/piv-go/v2; a stateful fake backs
//     the tests. Every error crossing this boundary that is not already
//     one of the typed errors in the interfaces package is wrapped into
//     an interfaces.TransportError, so callers can tell "token missing or
//     gone away" apart from logic errors.
//
//   - KeyCache remembers PINs, public keys and logical key names per
//     token serial for the lifetime of a process. It is not goroutine
//     safe; the token workflow is single-threaded and blocking, and
//     callers running parallel operations must serialize access.
//
//   - Session wraps one open token connection for one logical operation.
//     Connections are scoped resources: acquired, used, and closed on
//     every exit path. A session is never held across an interactive
//     pause such as waiting for the user to insert a token.
//
//   - Discovery implements the insert-discover-validate-acquire loop that
//     finds a token able to sign for a metadata role, prompting the user
//     as needed. The loop retries indefinitely when the caller allows it,
//     bounded only by context cancellation. A PIN lock-out aborts it
//     immediately.
//
//   - Setup provisions a token from factory state: reset, fresh
//     management key, key material into the first free slot with a
//     PIN-always policy, self-signed certificate, and PIN/PUK rotation.
//     The sequence is not transactional; a failure mid-way leaves the
//     token reset but only partially configured, and the caller must
//     re-run provisioning from scratch.
package hsm
