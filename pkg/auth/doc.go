// Package auth provides the Hawk authentication guard for hawkgate.
//
// The guard is HTTP middleware. For every request it selects one of two
// mutually exclusive authentication modes: signed-header (an
// "Authorization: Hawk ..." header) or URL token (a bewit carried in the
// query string under TokenKey). Verification itself is delegated to an
// Authenticator; credentials are looked up through an injected Resolver.
//
// On success the resolved credentials are handed to a SessionSink and the
// response writer is wrapped so that the emitted body is normalized and,
// in signed-header mode, signed with a Server-Authorization header. Every
// failure is rendered by an ErrorPresenter and halts the request before any
// downstream handler runs.
//
// Proofs are verified against the host and port the client addressed. By
// default those come from Options or the Host header of the request as
// received. Behind a reverse proxy that rewrites Host, either pin
// Options.Host and Options.Port to the public origin or set
// GuardConfig.TrustForwarded, otherwise every header-mode request fails
// with "Bad mac". Enable TrustForwarded only when the proxy overwrites the
// X-Forwarded-* headers, since clients can set them.
//
// A request admitted by one guard passes any further guard in the same
// chain untouched.
package auth
