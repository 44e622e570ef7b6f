// Package hawk implements auth.Authenticator and auth.Minter on top of
// github.com/tent/hawk-go.
//
// Header mode verifies "Authorization: Hawk" request headers, rejecting
// replayed nonces through an in-memory cache. Bewit mode verifies the
// token carried in the query string under auth.TokenKey. Both use the
// package clock of hawk-go, so freezing hawk.Now freezes verification and
// minting alike.
package hawk

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	hawklib "github.com/tent/hawk-go"

	"github.com/rhuss/hawkgate/pkg/auth"
	"github.com/rhuss/hawkgate/pkg/debug"
)

// Defaults for Config.
const (
	DefaultNonceTTL       = 2 * time.Minute
	DefaultNonceCacheSize = 100000
)

// Config configures an Authenticator.
type Config struct {
	// NonceTTL is how long a verified nonce is remembered. It should
	// exceed twice the allowed clock skew.
	NonceTTL time.Duration

	// NonceCacheSize bounds the number of remembered nonces.
	NonceCacheSize int

	Logger *slog.Logger
}

// Authenticator verifies Hawk proofs, signs responses and mints bewits.
type Authenticator struct {
	nonces *nonceCache
	logger *slog.Logger
}

var (
	_ auth.Authenticator = (*Authenticator)(nil)
	_ auth.Minter        = (*Authenticator)(nil)
)

// New creates an Authenticator. Call Close to release the nonce cache.
func New(cfg Config) *Authenticator {
	if cfg.NonceTTL <= 0 {
		cfg.NonceTTL = DefaultNonceTTL
	}
	if cfg.NonceCacheSize <= 0 {
		cfg.NonceCacheSize = DefaultNonceCacheSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Authenticator{
		nonces: newNonceCache(cfg.NonceTTL, cfg.NonceCacheSize, func() time.Time { return hawklib.Now() }),
		logger: cfg.Logger,
	}
}

// Close stops background maintenance of the nonce cache.
func (a *Authenticator) Close() {
	a.nonces.close()
}

// Authenticate verifies req in the given mode.
func (a *Authenticator) Authenticate(ctx context.Context, req *auth.Request, mode auth.Mode, lookup auth.Lookup) auth.Outcome {
	if mode == auth.ModeBewit {
		return a.authenticateBewit(ctx, req, lookup)
	}
	return a.authenticateHeader(ctx, req, lookup)
}

func (a *Authenticator) authenticateHeader(ctx context.Context, req *auth.Request, lookup auth.Lookup) auth.Outcome {
	header := req.Header.Get("Authorization")
	if header == "" {
		return auth.ChallengeRequired{Challenge: "Hawk"}
	}

	canonical, attrs, herr := parseHeader(header)
	if herr != nil {
		if herr.message == "" {
			return auth.ChallengeRequired{Challenge: "Hawk"}
		}
		return auth.BadRequest(herr.message)
	}

	debug.Trace("hawk", "verifying header", "id", attrs["id"], "mac", debug.Redact(attrs["mac"]))

	hr := prepare(req)
	hr.Header.Set("Authorization", canonical)

	st := &lookupState{}
	h, err := hawklib.NewAuthFromRequest(hr, st.credentialsFunc(ctx, lookup), acceptNonce)
	if err == nil {
		err = h.Valid()
	}
	if err != nil {
		return a.classify(err, h, st, auth.ModeHeader, "Bad header format")
	}

	key := h.Credentials.ID + ":" + h.Nonce + ":" + attrs["ts"]
	if a.nonces.checkAndMark(key) {
		debug.Log("hawk", "nonce replayed", "id", h.Credentials.ID)
		return auth.Unauthorized("Invalid nonce")
	}

	return auth.Success{Credentials: st.creds, Artifacts: artifacts(h, auth.ModeHeader)}
}

func (a *Authenticator) authenticateBewit(ctx context.Context, req *auth.Request, lookup auth.Lookup) auth.Outcome {
	value := req.URL.Query().Get(auth.TokenKey)
	if value == "" {
		return auth.Unauthorized("Empty bewit")
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return auth.Unauthorized("Invalid method")
	}
	if req.Header.Get("Authorization") != "" {
		return auth.BadRequest("Multiple authentications")
	}

	b, malformed := parseBewit(value)
	if malformed != nil {
		return *malformed
	}
	if !hawklib.Now().Before(b.expires) {
		return auth.Unauthorized("Access expired")
	}

	st := &lookupState{}
	h, err := hawklib.NewAuthFromRequest(prepare(req), st.credentialsFunc(ctx, lookup), acceptNonce)
	if err == nil {
		err = h.Valid()
	}
	if err != nil {
		return a.classify(err, h, st, auth.ModeBewit, "Invalid bewit structure")
	}

	return auth.Success{Credentials: st.creds, Artifacts: artifacts(h, auth.ModeBewit)}
}

// classify maps a verification error to an outcome. State recorded by the
// credentials callback wins over the error hawk-go reports for it.
func (a *Authenticator) classify(err error, h *hawklib.Auth, st *lookupState, mode auth.Mode, malformed string) auth.Outcome {
	switch {
	case st.failed:
		return auth.Rejected{StatusCode: http.StatusForbidden, Reason: "Forbidden"}
	case st.unknown:
		return auth.Unauthorized("Unknown credentials")
	case st.invalid != nil:
		a.logger.Error("stored credentials are unusable",
			"id", st.id,
			"error", st.invalid,
		)
		return auth.Internal()
	}

	switch {
	case errors.Is(err, hawklib.ErrInvalidMAC):
		return auth.Unauthorized("Bad mac")
	case errors.Is(err, hawklib.ErrTimestampSkew):
		return staleTimestamp(h)
	case errors.Is(err, hawklib.ErrReplay):
		return auth.Unauthorized("Invalid nonce")
	case errors.Is(err, hawklib.ErrBewitExpired):
		return auth.Unauthorized("Access expired")
	case errors.Is(err, hawklib.ErrInvalidBewitMethod):
		return auth.Unauthorized("Invalid method")
	case errors.Is(err, hawklib.ErrNoAuth):
		return auth.ChallengeRequired{Challenge: "Hawk"}
	}

	debug.Log("hawk", "unclassified verification error", "mode", mode.String(), "error", err)
	return auth.BadRequest(malformed)
}

// SignResponse computes the Server-Authorization header for a response to a
// request verified in header mode.
func (a *Authenticator) SignResponse(creds *auth.Credentials, artifacts *auth.Artifacts, payload []byte, contentType string) (string, error) {
	if artifacts == nil {
		return "", errors.New("hawk: missing request artifacts")
	}
	h, ok := artifacts.Handle.(*hawklib.Auth)
	if !ok || h == nil {
		return "", errors.New("hawk: artifacts were not produced by this authenticator")
	}
	hf, err := HashFunc(creds.Algorithm)
	if err != nil {
		return "", err
	}

	resp := *h
	resp.Credentials.Key = creds.Key
	resp.Credentials.Hash = hf

	ph := resp.PayloadHash(MediaType(contentType))
	ph.Write(payload)
	resp.SetHash(ph)

	if debug.TraceIsEnabled("hawk") {
		debug.Raw("hawk", "signed payload ("+contentType+"):\n"+string(payload))
	}

	header := resp.ResponseHeader("")
	debug.Trace("hawk", "signed response", "id", creds.ID, "header", header)
	return header, nil
}

// Bewit mints a bewit for rawURL. See Mint.
func (a *Authenticator) Bewit(creds *auth.Credentials, rawURL string, ttl time.Duration, ext string) (string, error) {
	return Mint(creds, rawURL, ttl, ext)
}

// lookupState records what the credentials callback saw, since hawk-go
// only reports that the callback failed.
type lookupState struct {
	id      string
	creds   *auth.Credentials
	failed  bool
	unknown bool
	invalid error
}

var errLookupAborted = errors.New("hawk: credential lookup aborted")

func (st *lookupState) credentialsFunc(ctx context.Context, lookup auth.Lookup) hawklib.CredentialsLookupFunc {
	return func(c *hawklib.Credentials) error {
		st.id = c.ID
		creds, err := lookup(ctx, c.ID)
		if err != nil {
			st.failed = true
			return errLookupAborted
		}
		if creds == nil {
			st.unknown = true
			return errLookupAborted
		}
		if creds.Key == "" {
			st.invalid = auth.ErrInvalidCredentials
			return errLookupAborted
		}
		hf, err := HashFunc(creds.Algorithm)
		if err != nil {
			st.invalid = err
			return errLookupAborted
		}

		c.Key = creds.Key
		c.Hash = hf
		c.Data = creds
		st.creds = creds
		return nil
	}
}

// acceptNonce defers replay detection until the MAC has been verified, so
// forged requests cannot occupy the cache.
func acceptNonce(string, time.Time, *hawklib.Credentials) bool {
	return true
}

// prepare builds the request hawk-go verifies against: the original URL and
// the expected host and port.
func prepare(req *auth.Request) *http.Request {
	u := *req.URL
	hr := &http.Request{
		Method:     req.Method,
		URL:        &u,
		RequestURI: u.RequestURI(),
		Header:     req.Header.Clone(),
		Host:       net.JoinHostPort(req.Host, req.Port),
	}
	if hr.Header == nil {
		hr.Header = make(http.Header)
	}
	return hr
}

func artifacts(h *hawklib.Auth, mode auth.Mode) *auth.Artifacts {
	return &auth.Artifacts{
		Mode:      mode,
		Method:    h.Method,
		Resource:  h.RequestURI,
		Host:      h.Host,
		Port:      h.Port,
		Timestamp: h.Timestamp,
		Nonce:     h.Nonce,
		Ext:       h.Ext,
		Handle:    h,
	}
}

// HashFunc maps a credential algorithm name to its hash constructor. An
// empty name selects sha256.
func HashFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToLower(algorithm) {
	case "", "sha256":
		return sha256.New, nil
	case "sha1":
		return sha1.New, nil
	default:
		return nil, fmt.Errorf("%w: %q", auth.ErrUnknownAlgorithm, algorithm)
	}
}

var tsAttribute = regexp.MustCompile(`(tsm|ts)="([^"]*)"`)

// staleTimestamp builds the 401 that lets a client resynchronize its clock:
// the server time and its MAC under the client's key.
func staleTimestamp(h *hawklib.Auth) auth.Outcome {
	o := auth.Unauthorized("Stale timestamp")
	if h == nil || h.Credentials.Hash == nil {
		return o
	}

	header := h.StaleTimestampHeader()
	for _, m := range tsAttribute.FindAllStringSubmatch(header, -1) {
		o.Payload.Attributes[m[1]] = m[2]
	}
	o.Headers.Set("WWW-Authenticate", header)
	return o
}

// MediaType strips parameters from a Content-Type value, as payload hashes
// require.
func MediaType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
