package auth

import (
	"context"
	"net/http"
)

// credentialsKey is a private type for the credentials context key.
type credentialsKey struct{}

// SetCredentials stores the authenticated credentials in the context.
func SetCredentials(ctx context.Context, creds *Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

// CredentialsFromContext retrieves the authenticated credentials.
// Returns nil if the request did not pass through a guard.
func CredentialsFromContext(ctx context.Context) *Credentials {
	if v, ok := ctx.Value(credentialsKey{}).(*Credentials); ok {
		return v
	}
	return nil
}

type admittedKey struct{}

// withAdmitted marks ctx as having passed a guard.
func withAdmitted(ctx context.Context) context.Context {
	return context.WithValue(ctx, admittedKey{}, true)
}

func admitted(ctx context.Context) bool {
	v, _ := ctx.Value(admittedKey{}).(bool)
	return v
}

// ContextSink is the default SessionSink. It attaches the credentials to
// the request context.
var ContextSink SessionSink = SessionSinkFunc(func(r *http.Request, creds *Credentials) (*http.Request, error) {
	return r.WithContext(SetCredentials(r.Context(), creds)), nil
})
