// Package transport provides the net/http middleware shared by the gateway
// routes (request IDs, panic recovery, access logging) and the JSON error
// envelope used by the gateway's own endpoints.
//
// Hawk authentication failures are not rendered here; they go through the
// auth.ErrorPresenter configured on the guard.
package transport
