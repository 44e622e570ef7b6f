// Package storage defines the credential store contract shared by the
// storage adapters (memory, postgres, sqlite) and its sentinel errors.
//
// Every store is an auth.Resolver: Resolve returns (nil, nil) for an
// unknown id and reserves errors for infrastructure failures.
package storage
