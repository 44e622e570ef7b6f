package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rhuss/hawkgate/pkg/auth"
)

// CredentialStore persists Hawk credentials.
type CredentialStore interface {
	auth.Resolver

	// Create adds a credential. It returns ErrConflict if the id is taken.
	Create(ctx context.Context, creds *auth.Credentials) error

	// Put creates or replaces a credential.
	Put(ctx context.Context, creds *auth.Credentials) error

	// Delete removes a credential. It returns ErrNotFound if the id is unknown.
	Delete(ctx context.Context, id string) error

	// List returns all credentials ordered by id.
	List(ctx context.Context) ([]*auth.Credentials, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// Check validates a credential before it is written and normalizes its
// algorithm name.
func Check(creds *auth.Credentials) error {
	if creds == nil || creds.ID == "" || creds.Key == "" {
		return ErrInvalid
	}
	creds.Algorithm = strings.ToLower(creds.Algorithm)
	switch creds.Algorithm {
	case "":
		creds.Algorithm = "sha256"
	case "sha256", "sha1":
	default:
		return fmt.Errorf("%w: %q", auth.ErrUnknownAlgorithm, creds.Algorithm)
	}
	return nil
}
