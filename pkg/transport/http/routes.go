package http

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/hawkgate/pkg/auth"
	"github.com/rhuss/hawkgate/pkg/observability"
	"github.com/rhuss/hawkgate/pkg/operator"
	"github.com/rhuss/hawkgate/pkg/storage"
	"github.com/rhuss/hawkgate/pkg/transport"
)

// DefaultMaxBewitTTL caps the lifetime of bewits minted over the API.
const DefaultMaxBewitTTL = 24 * time.Hour

// maxBodySize bounds JSON request bodies.
const maxBodySize = 64 << 10

// Routes holds the collaborators of the gateway endpoints.
type Routes struct {
	// Guard protects the /v1 endpoints. Required.
	Guard *auth.Guard

	// Minter issues bewits. Required.
	Minter auth.Minter

	// Store backs credential lookups and the admin credential API. Required.
	Store storage.CredentialStore

	// Operators authenticates the admin API. Nil disables /admin.
	Operators *operator.Chain

	// Limiter throttles authenticated callers. Nil disables rate limiting.
	Limiter auth.RateLimiter

	// Presenter renders guard and rate limit failures.
	Presenter auth.ErrorPresenter

	// MetricsPath serves Prometheus metrics. Empty disables the endpoint.
	MetricsPath string

	MaxBewitTTL time.Duration

	// Now is the clock used for expires_at. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Handler builds the gateway mux.
func (rt *Routes) Handler() http.Handler {
	if rt.MaxBewitTTL <= 0 {
		rt.MaxBewitTTL = DefaultMaxBewitTTL
	}
	if rt.Now == nil {
		rt.Now = time.Now
	}
	if rt.Logger == nil {
		rt.Logger = slog.Default()
	}
	if rt.Presenter == nil {
		rt.Presenter = auth.JSONPresenter
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.handleHealth)
	if rt.MetricsPath != "" {
		mux.Handle("GET "+rt.MetricsPath, promhttp.Handler())
	}

	mux.Handle("GET /v1/whoami", rt.guarded(http.HandlerFunc(rt.handleWhoami)))
	mux.Handle("POST /v1/bewits", rt.guarded(http.HandlerFunc(rt.handleMintSelf)))

	if rt.Operators != nil {
		bewits := operator.Require(rt.Operators, operator.ScopeBewits)
		creds := operator.Require(rt.Operators, operator.ScopeCredentials)
		mux.Handle("POST /admin/v1/bewits", bewits(http.HandlerFunc(rt.handleMintOperator)))
		mux.Handle("GET /admin/v1/credentials", creds(http.HandlerFunc(rt.handleListCredentials)))
		mux.Handle("POST /admin/v1/credentials", creds(http.HandlerFunc(rt.handleCreateCredential)))
		mux.Handle("DELETE /admin/v1/credentials/{id}", creds(http.HandlerFunc(rt.handleDeleteCredential)))
	}

	return mux
}

func (rt *Routes) guarded(h http.Handler) http.Handler {
	if rt.Limiter != nil {
		h = auth.RateLimit(rt.Limiter, rt.Presenter)(h)
	}
	return rt.Guard.Middleware(h)
}

func (rt *Routes) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := rt.Store.HealthCheck(ctx); err != nil {
		rt.Logger.Warn("health check failed", "error", err)
		transport.WriteError(w, &transport.APIError{
			Type:    transport.ErrorTypeUnavailable,
			Message: "credential store unavailable",
		})
		return
	}
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type whoamiResponse struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

func (rt *Routes) handleWhoami(w http.ResponseWriter, r *http.Request) {
	creds := auth.CredentialsFromContext(r.Context())
	transport.WriteJSON(w, http.StatusOK, whoamiResponse{ID: creds.ID, User: creds.User})
}

// mintRequest is the body of the bewit endpoints. ID is honoured only on
// the admin endpoint.
type mintRequest struct {
	ID         string `json:"id,omitempty"`
	URL        string `json:"url"`
	TTLSeconds int64  `json:"ttl_seconds"`
	Ext        string `json:"ext,omitempty"`
}

type mintResponse struct {
	Bewit     string `json:"bewit"`
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

// handleMintSelf lets an authenticated caller share a URL on this gateway
// using its own credentials.
func (rt *Routes) handleMintSelf(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		transport.WriteError(w, apiErr)
		return
	}

	target, err := url.Parse(req.URL)
	if err != nil || !rt.sameOrigin(r, target) {
		transport.WriteError(w, transport.NewInvalidRequestError("url", "url must address this gateway"))
		return
	}

	rt.mint(w, r, auth.CredentialsFromContext(r.Context()), req, "self")
}

// handleMintOperator mints a bewit for any stored credential.
func (rt *Routes) handleMintOperator(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		transport.WriteError(w, apiErr)
		return
	}
	if req.ID == "" {
		transport.WriteError(w, transport.NewInvalidRequestError("id", "id is required"))
		return
	}

	creds, err := rt.Store.Resolve(r.Context(), req.ID)
	if err != nil {
		rt.Logger.Error("credential lookup failed", "id", req.ID, "error", err)
		transport.WriteError(w, transport.NewServerError("credential lookup failed"))
		return
	}
	if creds == nil {
		transport.WriteError(w, transport.NewNotFoundError("credential not found"))
		return
	}

	rt.mint(w, r, creds, req, "operator")
}

func (rt *Routes) mint(w http.ResponseWriter, r *http.Request, creds *auth.Credentials, req mintRequest, source string) {
	// Bounds are checked in seconds so large values cannot overflow.
	if req.TTLSeconds <= 0 || req.TTLSeconds > int64(rt.MaxBewitTTL/time.Second) {
		transport.WriteError(w, transport.NewInvalidRequestError("ttl_seconds",
			"ttl_seconds must be between 1 and "+rt.MaxBewitTTL.String()))
		return
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second

	now := rt.Now()
	token, err := rt.Minter.Bewit(creds, req.URL, ttl, req.Ext)
	switch {
	case errors.Is(err, auth.ErrInvalidURL):
		transport.WriteError(w, transport.NewInvalidRequestError("url", err.Error()))
		return
	case errors.Is(err, auth.ErrInvalidTTL):
		transport.WriteError(w, transport.NewInvalidRequestError("ttl_seconds", err.Error()))
		return
	case errors.Is(err, auth.ErrInvalidExt):
		transport.WriteError(w, transport.NewInvalidRequestError("ext", err.Error()))
		return
	case err != nil:
		rt.Logger.Error("minting bewit failed", "id", creds.ID, "error", err)
		transport.WriteError(w, transport.NewServerError("minting bewit failed"))
		return
	}

	shared := req.URL + "?" + auth.TokenKey + "=" + token
	if strings.Contains(req.URL, "?") {
		shared = req.URL + "&" + auth.TokenKey + "=" + token
	}

	observability.BewitsMintedTotal.WithLabelValues(source).Inc()
	rt.Logger.Info("bewit minted",
		"id", creds.ID,
		"source", source,
		"ttl", ttl,
		"request_id", transport.RequestIDFromContext(r.Context()),
	)

	transport.WriteJSON(w, http.StatusCreated, mintResponse{
		Bewit:     token,
		URL:       shared,
		ExpiresAt: now.Add(ttl).Unix(),
	})
}

// sameOrigin reports whether u addresses the host and port the guard
// verified r against.
func (rt *Routes) sameOrigin(r *http.Request, u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	_, host, port := rt.Guard.Origin(r)

	targetPort := u.Port()
	if targetPort == "" {
		targetPort = "80"
		if u.Scheme == "https" {
			targetPort = "443"
		}
	}
	return strings.EqualFold(u.Hostname(), host) && targetPort == port
}

// credentialView is a stored credential without its key.
type credentialView struct {
	ID        string `json:"id"`
	Algorithm string `json:"algorithm"`
	User      string `json:"user,omitempty"`
	Key       string `json:"key,omitempty"`
}

type credentialList struct {
	Object string           `json:"object"`
	Data   []credentialView `json:"data"`
}

func (rt *Routes) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	list, err := rt.Store.List(r.Context())
	if err != nil {
		rt.Logger.Error("listing credentials failed", "error", err)
		transport.WriteError(w, transport.NewServerError("listing credentials failed"))
		return
	}

	out := credentialList{Object: "list", Data: make([]credentialView, 0, len(list))}
	for _, c := range list {
		out.Data = append(out.Data, credentialView{ID: c.ID, Algorithm: c.Algorithm, User: c.User})
	}
	transport.WriteJSON(w, http.StatusOK, out)
}

type createCredentialRequest struct {
	ID        string `json:"id"`
	Key       string `json:"key,omitempty"`
	Algorithm string `json:"algorithm,omitempty"`
	User      string `json:"user,omitempty"`
}

// handleCreateCredential stores a credential. A missing key is generated
// and returned once in the response.
func (rt *Routes) handleCreateCredential(w http.ResponseWriter, r *http.Request) {
	var req createCredentialRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		transport.WriteError(w, apiErr)
		return
	}
	if req.ID == "" {
		transport.WriteError(w, transport.NewInvalidRequestError("id", "id is required"))
		return
	}

	generated := req.Key == ""
	if generated {
		key, err := generateKey()
		if err != nil {
			transport.WriteError(w, transport.NewServerError("generating key failed"))
			return
		}
		req.Key = key
	}

	creds := &auth.Credentials{ID: req.ID, Key: req.Key, Algorithm: req.Algorithm, User: req.User}
	err := rt.Store.Create(r.Context(), creds)
	switch {
	case errors.Is(err, storage.ErrConflict):
		transport.WriteError(w, transport.NewConflictError("credential already exists"))
		return
	case errors.Is(err, auth.ErrUnknownAlgorithm):
		transport.WriteError(w, transport.NewInvalidRequestError("algorithm", "algorithm must be sha256 or sha1"))
		return
	case err != nil:
		rt.Logger.Error("creating credential failed", "id", req.ID, "error", err)
		transport.WriteError(w, transport.NewServerError("creating credential failed"))
		return
	}

	subject := ""
	if id := operator.IdentityFromContext(r.Context()); id != nil {
		subject = id.Subject
	}
	rt.Logger.Info("credential created", "id", creds.ID, "operator", subject)

	view := credentialView{ID: creds.ID, Algorithm: creds.Algorithm, User: creds.User}
	if generated {
		view.Key = creds.Key
	}
	transport.WriteJSON(w, http.StatusCreated, view)
}

func (rt *Routes) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := rt.Store.Delete(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		transport.WriteError(w, transport.NewNotFoundError("credential not found"))
		return
	case err != nil:
		rt.Logger.Error("deleting credential failed", "id", id, "error", err)
		transport.WriteError(w, transport.NewServerError("deleting credential failed"))
		return
	}
	rt.Logger.Info("credential deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, v any) *transport.APIError {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		return transport.NewInvalidRequestError("content_type", "Content-Type must be application/json")
	}

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return transport.NewInvalidRequestError("body", "invalid JSON: "+err.Error())
	}
	return nil
}

// generateKey returns 32 random bytes, base64url encoded.
func generateKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
