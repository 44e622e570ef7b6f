package operator

import (
	"log/slog"
	"net/http"

	"github.com/rhuss/hawkgate/pkg/transport"
)

// Require returns middleware that admits only operators authenticated by
// chain and holding scope.
func Require(chain *Chain, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := chain.Authenticate(r.Context(), r)

			if result.Decision != Yes || result.Identity == nil {
				slog.Warn("operator authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
				)
				w.Header().Set("WWW-Authenticate", "Bearer")
				transport.WriteError(w, transport.NewUnauthorizedError(ErrUnauthenticated.Error()))
				return
			}

			if result.Identity.Subject == "" {
				slog.Error("operator authenticator returned identity with empty subject")
				transport.WriteError(w, transport.NewServerError("internal authentication error"))
				return
			}

			if !result.Identity.HasScope(scope) {
				slog.Warn("operator lacks scope",
					"subject", result.Identity.Subject,
					"scope", scope,
					"path", r.URL.Path,
				)
				transport.WriteError(w, transport.NewForbiddenError(ErrForbidden.Error()))
				return
			}

			slog.Debug("operator authenticated",
				"subject", result.Identity.Subject,
				"path", r.URL.Path,
			)

			next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), result.Identity)))
		})
	}
}
