package http

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	gohttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	hawklib "github.com/tent/hawk-go"

	"github.com/rhuss/hawkgate/pkg/auth"
	"github.com/rhuss/hawkgate/pkg/auth/hawk"
	"github.com/rhuss/hawkgate/pkg/operator"
	"github.com/rhuss/hawkgate/pkg/operator/apikey"
	"github.com/rhuss/hawkgate/pkg/storage"
	"github.com/rhuss/hawkgate/pkg/storage/memory"
	"github.com/rhuss/hawkgate/pkg/transport"
)

const (
	testHost  = "example.com:8080"
	opsKey    = "hg-ops-key"
	scopedKey = "hg-bewits-only"
	steveID   = "dh37fgj492je"
	steveKey  = "werxhqb98rpaxn39848xrunpaw3489ruxnpa98w4rxn"
)

var fixedNow = time.Unix(1700000000, 0)

type unhealthyStore struct {
	storage.CredentialStore
}

func (unhealthyStore) HealthCheck(context.Context) error {
	return errors.New("connection refused")
}

type testEnv struct {
	handler gohttp.Handler
	store   storage.CredentialStore
}

type envOption func(*Routes)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	store, err := memory.New(&auth.Credentials{ID: steveID, Key: steveKey, User: "steve"})
	if err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authn := hawk.New(hawk.Config{Logger: logger})
	t.Cleanup(authn.Close)

	guard, err := auth.NewGuard(auth.GuardConfig{
		Authenticator: authn,
		Resolver:      store,
		Logger:        logger,
	})
	if err != nil {
		t.Fatal(err)
	}

	rt := &Routes{
		Guard:  guard,
		Minter: authn,
		Store:  store,
		Operators: operator.NewChain(apikey.New([]apikey.Entry{
			{Key: opsKey, Subject: "ops", Scopes: []string{"*"}},
			{Key: scopedKey, Subject: "sharer", Scopes: []string{operator.ScopeBewits}},
		})),
		MetricsPath: "/metrics",
		Now:         func() time.Time { return fixedNow },
		Logger:      logger,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return &testEnv{handler: rt.Handler(), store: rt.Store}
}

func (e *testEnv) do(req *gohttp.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// hawkRequest builds a request signed with steve's credentials.
func hawkRequest(method, target string, body any) *gohttp.Request {
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	req.Host = testHost
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	ha := hawklib.NewRequestAuth(req, &hawklib.Credentials{ID: steveID, Key: steveKey, Hash: sha256.New}, 0)
	req.Header.Set("Authorization", ha.RequestHeader())
	return req
}

func operatorRequest(method, target, key string, body any) *gohttp.Request {
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != gohttp.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decode[map[string]string](t, rec)["status"]; got != "ok" {
		t.Errorf("status field = %q, want ok", got)
	}
}

func TestHealth_StoreDown(t *testing.T) {
	env := newTestEnv(t, func(rt *Routes) { rt.Store = unhealthyStore{rt.Store} })
	rec := env.do(httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != gohttp.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != gohttp.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	disabled := newTestEnv(t, func(rt *Routes) { rt.MetricsPath = "" })
	if rec := disabled.do(httptest.NewRequest("GET", "/metrics", nil)); rec.Code != gohttp.StatusNotFound {
		t.Errorf("disabled metrics: status = %d, want 404", rec.Code)
	}
}

func TestWhoami_Header(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(hawkRequest("GET", "/v1/whoami", nil))

	if rec.Code != gohttp.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	got := decode[whoamiResponse](t, rec)
	if got.ID != steveID || got.User != "steve" {
		t.Errorf("whoami = %+v", got)
	}
	if rec.Header().Get("Server-Authorization") == "" {
		t.Error("response not signed")
	}
}

func TestWhoami_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest("GET", "/v1/whoami", nil)
	req.Host = testHost
	rec := env.do(req)

	if rec.Code != gohttp.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if got := rec.Body.String(); got != `{"statusCode":401,"error":"Unauthorized"}` {
		t.Errorf("body = %s", got)
	}
}

func TestMintSelf_RoundTrip(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(hawkRequest("POST", "/v1/bewits", mintRequest{
		URL:        "http://example.com:8080/v1/whoami",
		TTLSeconds: 60,
	}))
	if rec.Code != gohttp.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	minted := decode[mintResponse](t, rec)
	if minted.ExpiresAt != fixedNow.Add(time.Minute).Unix() {
		t.Errorf("expires_at = %d", minted.ExpiresAt)
	}
	if !strings.HasSuffix(minted.URL, "?bewit="+minted.Bewit) {
		t.Errorf("url = %q does not carry the bewit", minted.URL)
	}

	u, err := url.Parse(minted.URL)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("GET", u.RequestURI(), nil)
	req.Host = u.Host
	rec = env.do(req)

	if rec.Code != gohttp.StatusOK {
		t.Fatalf("bewit request: status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	if got := decode[whoamiResponse](t, rec); got.ID != steveID {
		t.Errorf("whoami via bewit = %+v", got)
	}
}

func TestMintSelf_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		body  mintRequest
		param string
	}{
		{"other host", mintRequest{URL: "http://evil.example.com:8080/v1/whoami", TTLSeconds: 60}, "url"},
		{"other port", mintRequest{URL: "http://example.com/v1/whoami", TTLSeconds: 60}, "url"},
		{"relative", mintRequest{URL: "/v1/whoami", TTLSeconds: 60}, "url"},
		{"zero ttl", mintRequest{URL: "http://example.com:8080/v1/whoami"}, "ttl_seconds"},
		{"ttl too long", mintRequest{URL: "http://example.com:8080/v1/whoami", TTLSeconds: 90000}, "ttl_seconds"},
		{"ttl overflows duration", mintRequest{URL: "http://example.com:8080/v1/whoami", TTLSeconds: 1<<55 + 60}, "ttl_seconds"},
		{"ttl max int64", mintRequest{URL: "http://example.com:8080/v1/whoami", TTLSeconds: math.MaxInt64}, "ttl_seconds"},
		{"bad ext", mintRequest{URL: "http://example.com:8080/v1/whoami", TTLSeconds: 60, Ext: `a\b`}, "ext"},
	}

	env := newTestEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(hawkRequest("POST", "/v1/bewits", tt.body))
			if rec.Code != gohttp.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", rec.Code, rec.Body.String())
			}
			if got := decode[transport.ErrorResponse](t, rec).Error.Param; got != tt.param {
				t.Errorf("param = %q, want %q", got, tt.param)
			}
		})
	}
}

func TestMintSelf_UnknownField(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(hawkRequest("POST", "/v1/bewits", map[string]any{"url": "x", "bogus": 1}))
	if rec.Code != gohttp.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestMintOperator(t *testing.T) {
	env := newTestEnv(t)
	body := mintRequest{ID: steveID, URL: "https://files.example.org/report.pdf", TTLSeconds: 300}

	if rec := env.do(operatorRequest("POST", "/admin/v1/bewits", "", body)); rec.Code != gohttp.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}
	if rec := env.do(operatorRequest("POST", "/admin/v1/bewits", "wrong", body)); rec.Code != gohttp.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}

	rec := env.do(operatorRequest("POST", "/admin/v1/bewits", scopedKey, body))
	if rec.Code != gohttp.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	minted := decode[mintResponse](t, rec)
	if minted.URL != body.URL+"?bewit="+minted.Bewit {
		t.Errorf("url = %q", minted.URL)
	}

	body.ID = "missing"
	if rec := env.do(operatorRequest("POST", "/admin/v1/bewits", opsKey, body)); rec.Code != gohttp.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", rec.Code)
	}

	body.ID = ""
	if rec := env.do(operatorRequest("POST", "/admin/v1/bewits", opsKey, body)); rec.Code != gohttp.StatusBadRequest {
		t.Errorf("missing id: status = %d, want 400", rec.Code)
	}
}

func TestCredentialsAdmin(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(operatorRequest("GET", "/admin/v1/credentials", scopedKey, nil)); rec.Code != gohttp.StatusForbidden {
		t.Errorf("missing scope: status = %d, want 403", rec.Code)
	}

	rec := env.do(operatorRequest("POST", "/admin/v1/credentials", opsKey, createCredentialRequest{ID: "alice-laptop", User: "alice"}))
	if rec.Code != gohttp.StatusCreated {
		t.Fatalf("create: status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	created := decode[credentialView](t, rec)
	if created.Key == "" {
		t.Error("generated key not returned")
	}
	if created.Algorithm != "sha256" {
		t.Errorf("algorithm = %q, want sha256", created.Algorithm)
	}

	stored, _ := env.store.Resolve(context.Background(), "alice-laptop")
	if stored == nil || stored.Key != created.Key {
		t.Errorf("stored credential = %+v", stored)
	}

	rec = env.do(operatorRequest("POST", "/admin/v1/credentials", opsKey, createCredentialRequest{ID: "alice-laptop", Key: "k"}))
	if rec.Code != gohttp.StatusConflict {
		t.Errorf("duplicate: status = %d, want 409", rec.Code)
	}

	rec = env.do(operatorRequest("POST", "/admin/v1/credentials", opsKey, createCredentialRequest{ID: "x", Key: "k", Algorithm: "md5"}))
	if rec.Code != gohttp.StatusBadRequest {
		t.Errorf("bad algorithm: status = %d, want 400", rec.Code)
	}

	rec = env.do(operatorRequest("POST", "/admin/v1/credentials", opsKey, createCredentialRequest{ID: "bob", Key: "supplied"}))
	if got := decode[credentialView](t, rec); got.Key != "" {
		t.Error("supplied key echoed back")
	}

	rec = env.do(operatorRequest("GET", "/admin/v1/credentials", opsKey, nil))
	list := decode[credentialList](t, rec)
	if len(list.Data) != 3 {
		t.Fatalf("len(data) = %d, want 3", len(list.Data))
	}
	for _, c := range list.Data {
		if c.Key != "" {
			t.Errorf("list exposes key of %q", c.ID)
		}
	}

	if rec := env.do(operatorRequest("DELETE", "/admin/v1/credentials/bob", opsKey, nil)); rec.Code != gohttp.StatusNoContent {
		t.Errorf("delete: status = %d, want 204", rec.Code)
	}
	if rec := env.do(operatorRequest("DELETE", "/admin/v1/credentials/bob", opsKey, nil)); rec.Code != gohttp.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", rec.Code)
	}
}

func TestAdminDisabled(t *testing.T) {
	env := newTestEnv(t, func(rt *Routes) { rt.Operators = nil })

	rec := env.do(operatorRequest("POST", "/admin/v1/bewits", opsKey, mintRequest{ID: steveID}))
	if rec.Code != gohttp.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRateLimited(t *testing.T) {
	env := newTestEnv(t, func(rt *Routes) { rt.Limiter = auth.NewInProcessLimiter(nil, 1) })

	if rec := env.do(hawkRequest("GET", "/v1/whoami", nil)); rec.Code != gohttp.StatusOK {
		t.Fatalf("first request: status = %d, want 200", rec.Code)
	}
	rec := env.do(hawkRequest("GET", "/v1/whoami", nil))
	if rec.Code != gohttp.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", rec.Code)
	}
	if got := rec.Body.String(); got != `{"statusCode":429,"error":"Too Many Requests","message":"rate limit exceeded"}` {
		t.Errorf("body = %s", got)
	}
}
