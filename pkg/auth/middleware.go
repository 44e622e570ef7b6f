package auth

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rhuss/hawkgate/pkg/debug"
	"github.com/rhuss/hawkgate/pkg/observability"
)

// Options are the static host and port the guard verifies proofs against.
// Empty fields fall back to the request's Host header.
type Options struct {
	Host string
	Port string
}

// GuardConfig configures a Guard.
type GuardConfig struct {
	// Authenticator verifies proofs and signs responses. Required.
	Authenticator Authenticator

	// Resolver looks up credentials by id. Required.
	Resolver Resolver

	// Sink records successful authentications. Defaults to ContextSink.
	Sink SessionSink

	// Presenter renders failures. Defaults to JSONPresenter.
	Presenter ErrorPresenter

	Options Options

	// TrustForwarded honours X-Forwarded-Host, X-Forwarded-Port and
	// X-Forwarded-Proto when computing the verification target. Required
	// behind a proxy that rewrites Host unless Options pins the origin.
	TrustForwarded bool

	Logger *slog.Logger
}

// Guard is the Hawk authentication middleware.
type Guard struct {
	authn     Authenticator
	resolver  Resolver
	sink      SessionSink
	presenter ErrorPresenter
	opts      Options
	forwarded bool
	logger    *slog.Logger
}

// NewGuard validates cfg and returns a Guard.
func NewGuard(cfg GuardConfig) (*Guard, error) {
	if cfg.Authenticator == nil {
		return nil, errors.New("auth: guard requires an authenticator")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("auth: guard requires a credential resolver")
	}
	g := &Guard{
		authn:     cfg.Authenticator,
		resolver:  cfg.Resolver,
		sink:      cfg.Sink,
		presenter: cfg.Presenter,
		opts:      cfg.Options,
		forwarded: cfg.TrustForwarded,
		logger:    cfg.Logger,
	}
	if g.sink == nil {
		g.sink = ContextSink
	}
	if g.presenter == nil {
		g.presenter = JSONPresenter
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g, nil
}

// Middleware returns the guard as HTTP middleware. Exactly one of two
// things happens per request: next runs with the credentials recorded and
// the response wrapped, or the presenter renders a failure and next never
// runs. A request already admitted by an outer guard goes straight to
// next: its nonce is spent and its response is signed by the outer guard.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if admitted(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}

		req := g.describe(r)
		mode := SelectMode(req.URL)

		// Resolver failures are remembered here and take precedence over
		// whatever the authenticator made of the aborted lookup.
		var lookupErr error
		lookup := func(ctx context.Context, id string) (*Credentials, error) {
			start := time.Now()
			creds, err := g.resolver.Resolve(ctx, id)
			result := "found"
			switch {
			case err != nil:
				result = "error"
				lookupErr = err
			case creds == nil:
				result = "unknown"
			}
			observability.ObserveLookup(result, time.Since(start))
			return creds, err
		}

		outcome := g.authn.Authenticate(r.Context(), req, mode, lookup)

		if lookupErr != nil {
			g.logger.Error("credential lookup failed",
				"path", req.URL.Path,
				"mode", mode.String(),
				"error", lookupErr,
			)
			g.fail(w, r, mode, "forbidden", http.StatusForbidden, "Forbidden", nil)
			return
		}

		switch o := outcome.(type) {
		case Success:
			if o.Credentials == nil {
				w.Header().Set("WWW-Authenticate", "Hawk")
				g.fail(w, r, mode, "challenge", http.StatusUnauthorized, "Unauthorized", nil)
				return
			}
			g.admit(w, r, next, mode, o)

		case ChallengeRequired:
			w.Header().Set("WWW-Authenticate", o.Challenge)
			g.fail(w, r, mode, "challenge", http.StatusUnauthorized, "Unauthorized", nil)

		case Rejected:
			for name, values := range o.Headers {
				for _, v := range values {
					w.Header().Add(name, v)
				}
			}
			label := "rejected"
			if o.StatusCode >= http.StatusInternalServerError {
				label = "error"
			}
			g.fail(w, r, mode, label, o.StatusCode, o.Reason, o.Payload)

		case MalformedRequest:
			g.fail(w, r, mode, "malformed", o.StatusCode, o.Reason, &ErrorPayload{
				StatusCode: o.StatusCode,
				Error:      o.Reason,
				Message:    o.Message,
			})

		default:
			g.logger.Error("authenticator returned no outcome", "path", req.URL.Path)
			g.fail(w, r, mode, "error", http.StatusInternalServerError, "Internal Server Error", nil)
		}
	})
}

func (g *Guard) admit(w http.ResponseWriter, r *http.Request, next http.Handler, mode Mode, o Success) {
	recorded, err := g.sink.Record(r, o.Credentials)
	if err != nil {
		g.logger.Error("session sink failed",
			"id", o.Credentials.ID,
			"error", err,
		)
		g.fail(w, r, mode, "error", http.StatusInternalServerError, "Internal Server Error", nil)
		return
	}
	if recorded == nil {
		recorded = r
	}
	recorded = recorded.WithContext(withAdmitted(recorded.Context()))

	observability.AuthOutcomesTotal.WithLabelValues(mode.String(), "success").Inc()
	debug.Log("auth", "request authenticated",
		"id", o.Credentials.ID,
		"user", o.Credentials.User,
		"mode", mode.String(),
		"path", r.URL.Path,
	)

	// An outer guard already owns the response.
	if wrapped(w) {
		next.ServeHTTP(w, recorded)
		return
	}

	var sign signFunc
	// Bewit holders do not know the key, so a signature would be useless
	// to them.
	if mode == ModeHeader {
		creds, artifacts := o.Credentials, o.Artifacts
		sign = func(payload []byte, contentType string) (string, error) {
			return g.authn.SignResponse(creds, artifacts, payload, contentType)
		}
	}

	sw := newSigningWriter(w, sign, g.logger)
	next.ServeHTTP(sw, recorded)
	sw.send()
}

func (g *Guard) fail(w http.ResponseWriter, r *http.Request, mode Mode, label string, status int, reason string, payload *ErrorPayload) {
	observability.AuthOutcomesTotal.WithLabelValues(mode.String(), label).Inc()
	if status < http.StatusInternalServerError && status != http.StatusForbidden {
		msg := ""
		if payload != nil {
			msg = payload.Message
		}
		g.logger.Warn("authentication failed",
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"mode", mode.String(),
			"status", status,
			"reason", msg,
		)
	}
	g.presenter.Present(w, status, reason, payload)
}

// describe builds the verification view of r: the original URL, and the
// host and port the client is expected to have signed.
func (g *Guard) describe(r *http.Request) *Request {
	_, host, port := g.Origin(r)
	return &Request{
		Method: r.Method,
		URL:    originalURL(r),
		Header: r.Header,
		Host:   host,
		Port:   port,
	}
}

// Origin returns the scheme, host and port a client addressed r to, as the
// guard sees them: static options first, then trusted forwarding headers.
// The port is never empty.
func (g *Guard) Origin(r *http.Request) (scheme, host, port string) {
	host, port = splitHostPort(r.Host)
	if g.opts.Host != "" {
		host = g.opts.Host
	}
	if g.opts.Port != "" {
		port = g.opts.Port
	}

	scheme = "http"
	if r.TLS != nil {
		scheme = "https"
	}

	if g.forwarded {
		if fh := firstValue(r.Header.Get("X-Forwarded-Host")); fh != "" {
			host, port = splitHostPort(fh)
		}
		if fp := firstValue(r.Header.Get("X-Forwarded-Port")); fp != "" {
			port = fp
		}
		if proto := firstValue(r.Header.Get("X-Forwarded-Proto")); proto != "" {
			scheme = strings.ToLower(proto)
		}
	}

	if port == "" {
		port = "80"
		if scheme == "https" {
			port = "443"
		}
	}
	return scheme, host, port
}

// originalURL returns the path and query the client requested. Handlers
// mounted below a prefix see a rewritten r.URL, but r.RequestURI is left
// untouched by the standard library.
func originalURL(r *http.Request) *url.URL {
	if r.RequestURI != "" {
		if u, err := url.ParseRequestURI(r.RequestURI); err == nil {
			return &url.URL{Path: u.Path, RawPath: u.RawPath, RawQuery: u.RawQuery}
		}
	}
	return &url.URL{Path: r.URL.Path, RawPath: r.URL.RawPath, RawQuery: r.URL.RawQuery}
}

func splitHostPort(hostport string) (string, string) {
	if h, p, err := net.SplitHostPort(hostport); err == nil {
		return h, p
	}
	return strings.TrimSuffix(strings.TrimPrefix(hostport, "["), "]"), ""
}

func firstValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
