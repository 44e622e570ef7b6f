// Package jwt provides an operator authenticator for HS256-signed JWT
// bearer tokens, and issues such tokens for the hawkctl CLI.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/hawkgate/pkg/operator"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Secret is the shared HMAC key.
	Secret []byte

	// Issuer is the expected iss claim. If empty, issuer is not validated.
	Issuer string

	// Audience is the expected aud claim. If empty, audience is not validated.
	Audience string

	// ScopesClaim is the claim carrying scopes. Default: "scope". The
	// value can be a space-separated string or a JSON array.
	ScopesClaim string

	// Leeway tolerates clock skew on exp/nbf/iat. Default: 30s.
	Leeway time.Duration
}

func (c *Config) applyDefaults() {
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.Leeway == 0 {
		c.Leeway = 30 * time.Second
	}
}

// ErrNoSecret is returned by New and Issue when no secret is configured.
var ErrNoSecret = errors.New("jwt: secret is required")

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	config Config
}

// New creates a JWT authenticator.
func New(cfg Config) (*Authenticator, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrNoSecret
	}
	cfg.applyDefaults()
	return &Authenticator{config: cfg}, nil
}

// Authenticate abstains for requests without a bearer token that looks
// like a JWT, so that an API key authenticator later in the chain can
// handle opaque tokens.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) operator.Result {
	tokenStr, ok := operator.BearerToken(r)
	if !ok || strings.Count(tokenStr, ".") != 2 {
		return operator.Result{Decision: operator.Abstain}
	}

	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.config.Secret, nil
	}, a.parserOptions()...)
	if err != nil {
		slog.Debug("operator JWT validation failed", "error", err)
		return operator.Result{Decision: operator.No, Err: fmt.Errorf("invalid JWT: %w", err)}
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return operator.Result{Decision: operator.No, Err: errors.New("invalid JWT claims")}
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		return operator.Result{Decision: operator.No, Err: errors.New(`JWT missing "sub" claim`)}
	}

	return operator.Result{
		Decision: operator.Yes,
		Identity: &operator.Identity{
			Subject: subject,
			Scopes:  extractScopes(claims, a.config.ScopesClaim),
		},
	}
}

func (a *Authenticator) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithLeeway(a.config.Leeway),
	}
	if a.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.config.Issuer))
	}
	if a.config.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(a.config.Audience))
	}
	return opts
}

// Claims describes a token to issue.
type Claims struct {
	Subject  string
	Scopes   []string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// Issue signs an HS256 operator token.
func Issue(secret []byte, c Claims) (string, error) {
	if len(secret) == 0 {
		return "", ErrNoSecret
	}
	if c.Subject == "" {
		return "", errors.New("jwt: subject is required")
	}
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}

	now := time.Now()
	claims := jwtlib.MapClaims{
		"sub": c.Subject,
		"iat": now.Unix(),
		"exp": now.Add(c.TTL).Unix(),
	}
	if len(c.Scopes) > 0 {
		claims["scope"] = strings.Join(c.Scopes, " ")
	}
	if c.Issuer != "" {
		claims["iss"] = c.Issuer
	}
	if c.Audience != "" {
		claims["aud"] = c.Audience
	}

	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
}

// extractScopes reads a space-separated string or a JSON array claim.
func extractScopes(claims jwtlib.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case string:
		if parts := strings.Fields(v); len(parts) > 0 {
			return parts
		}
	case []interface{}:
		var scopes []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	return nil
}
