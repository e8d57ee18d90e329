package middleware

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	domainerrors "chronicle/pkg/domain-errors"
	"chronicle/pkg/platform/httputil"
)

// GatewaySecretHeader carries the shared secret proving the request passed
// through the edge gateway.
const GatewaySecretHeader = "X-Gateway-Secret"

// TrustedGateway rejects requests that do not carry the gateway's shared
// secret. secretHash is a bcrypt hash of the secret; an empty hash disables
// the check for deployments without an edge gateway.
func TrustedGateway(secretHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secretHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			secret := r.Header.Get(GatewaySecretHeader)
			if err := bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(secret)); err != nil {
				logger.WarnContext(r.Context(), "request without valid gateway secret",
					"path", r.URL.Path,
				)
				httputil.WriteError(w, domainerrors.New(domainerrors.CodeForbidden, "request did not pass through the gateway"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
