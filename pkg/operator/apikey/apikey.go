// Package apikey provides an operator authenticator that validates bearer
// tokens against a static key list using SHA-256 hashing and constant-time
// comparison.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/rhuss/hawkgate/pkg/operator"
)

// Entry is the configuration format for an operator API key.
type Entry struct {
	Key     string
	Subject string
	Scopes  []string
}

type hashedEntry struct {
	hash     [32]byte
	identity operator.Identity
}

// Authenticator validates bearer tokens against a static key list.
type Authenticator struct {
	keys []hashedEntry
}

// New creates an API key authenticator. Keys are hashed immediately;
// plaintext keys are not retained.
func New(entries []Entry) *Authenticator {
	a := &Authenticator{}
	for _, e := range entries {
		a.keys = append(a.keys, hashedEntry{
			hash:     sha256.Sum256([]byte(e.Key)),
			identity: operator.Identity{Subject: e.Subject, Scopes: e.Scopes},
		})
	}
	return a
}

// Authenticate abstains without a bearer token, says No for an unknown
// key and Yes for a known one.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) operator.Result {
	token, ok := operator.BearerToken(r)
	if !ok {
		return operator.Result{Decision: operator.Abstain}
	}
	if token == "" {
		return operator.Result{Decision: operator.No, Err: operator.ErrUnauthenticated}
	}

	tokenHash := sha256.Sum256([]byte(token))

	// Compare against every entry so timing does not reveal the position.
	var match *hashedEntry
	for i := range a.keys {
		if subtle.ConstantTimeCompare(tokenHash[:], a.keys[i].hash[:]) == 1 {
			match = &a.keys[i]
		}
	}
	if match == nil {
		return operator.Result{Decision: operator.No, Err: operator.ErrUnauthenticated}
	}

	id := match.identity
	id.Scopes = append([]string(nil), id.Scopes...)
	return operator.Result{Decision: operator.Yes, Identity: &id}
}
