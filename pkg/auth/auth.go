package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"
)

// TokenKey is the reserved query parameter that carries a bewit.
const TokenKey = "bewit"

// Credentials is a resolved credential record. It is immutable for the
// lifetime of the request that resolved it.
type Credentials struct {
	// ID is the public credential identifier sent by the client.
	ID string

	// Key is the shared secret.
	Key string

	// Algorithm is the MAC hash algorithm ("sha256" or "sha1").
	Algorithm string

	// User labels the principal owning the credentials.
	User string
}

// Mode is the authentication mode chosen for a request.
type Mode int

const (
	// ModeHeader verifies an "Authorization: Hawk" request header.
	ModeHeader Mode = iota

	// ModeBewit verifies a bewit carried in the query string.
	ModeBewit
)

func (m Mode) String() string {
	switch m {
	case ModeHeader:
		return "header"
	case ModeBewit:
		return "bewit"
	default:
		return "unknown"
	}
}

// SelectMode picks the authentication mode for a request URL. The presence
// of TokenKey in the query string selects ModeBewit, even when its value is
// empty.
func SelectMode(u *url.URL) Mode {
	if _, ok := u.Query()[TokenKey]; ok {
		return ModeBewit
	}
	return ModeHeader
}

// Request describes the request to verify.
type Request struct {
	Method string

	// URL holds the original request path and query, before any sub-router
	// rewrote it. Scheme and host are never set.
	URL *url.URL

	Header http.Header

	// Host and Port are the values the client signed against.
	Host string
	Port string
}

// Artifacts carries mode-specific proof metadata produced during
// verification. It is required to sign the response.
type Artifacts struct {
	Mode      Mode
	Method    string
	Resource  string
	Host      string
	Port      string
	Timestamp time.Time
	Nonce     string
	Ext       string

	// Handle is private state owned by the Authenticator that produced the
	// artifacts.
	Handle any
}

// Outcome is the result of verifying a request. It is exactly one of
// Success, ChallengeRequired, Rejected or MalformedRequest.
type Outcome interface {
	outcome()
}

// Success means the request carried a valid proof.
type Success struct {
	Credentials *Credentials
	Artifacts   *Artifacts
}

// ChallengeRequired means the request carried no authentication at all.
type ChallengeRequired struct {
	// Challenge is the WWW-Authenticate header value.
	Challenge string
}

// Rejected means the request carried a proof that failed verification.
type Rejected struct {
	StatusCode int
	Reason     string
	Payload    *ErrorPayload
	Headers    http.Header
}

// MalformedRequest means the proof could not be parsed.
type MalformedRequest struct {
	StatusCode int
	Reason     string
	Message    string
}

func (Success) outcome()           {}
func (ChallengeRequired) outcome() {}
func (Rejected) outcome()          {}
func (MalformedRequest) outcome()  {}

// Lookup resolves a credential identifier during verification.
type Lookup func(ctx context.Context, id string) (*Credentials, error)

// Authenticator verifies request proofs and signs responses.
type Authenticator interface {
	// Authenticate verifies req in the given mode, resolving credentials
	// through lookup. If lookup returns an error, verification stops.
	Authenticate(ctx context.Context, req *Request, mode Mode, lookup Lookup) Outcome

	// SignResponse computes the Server-Authorization header value for a
	// response payload.
	SignResponse(creds *Credentials, artifacts *Artifacts, payload []byte, contentType string) (string, error)
}

// Minter issues bewit tokens granting time-limited GET access to a URL.
type Minter interface {
	Bewit(creds *Credentials, url string, ttl time.Duration, ext string) (string, error)
}

// Resolver maps a credential identifier to a credential record.
// A nil record with a nil error means the identifier is unknown. A non-nil
// error signals an infrastructure failure.
type Resolver interface {
	Resolve(ctx context.Context, id string) (*Credentials, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, id string) (*Credentials, error)

// Resolve calls f(ctx, id).
func (f ResolverFunc) Resolve(ctx context.Context, id string) (*Credentials, error) {
	return f(ctx, id)
}

// SessionSink records resolved credentials against the current request.
// The returned request is the one downstream handlers receive.
type SessionSink interface {
	Record(r *http.Request, creds *Credentials) (*http.Request, error)
}

// SessionSinkFunc adapts a function to the SessionSink interface.
type SessionSinkFunc func(r *http.Request, creds *Credentials) (*http.Request, error)

// Record calls f(r, creds).
func (f SessionSinkFunc) Record(r *http.Request, creds *Credentials) (*http.Request, error) {
	return f(r, creds)
}

// Sentinel errors.
var (
	ErrInvalidURL         = errors.New("url must be absolute")
	ErrInvalidTTL         = errors.New("ttl must be a positive number of seconds")
	ErrInvalidCredentials = errors.New("credentials must have an id and a key")
	ErrUnknownAlgorithm   = errors.New("unknown algorithm")
	ErrInvalidExt         = errors.New("ext must not contain a backslash")
	ErrTooManyRequests    = errors.New("rate limit exceeded")
)
