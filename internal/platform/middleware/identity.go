// Package middleware provides the HTTP middleware chain for the chronicle
// server: operator identity, gateway trust, correlation, client metadata and
// request time. Middleware writes into pkg/requestcontext; everything
// downstream reads from there.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	domainerrors "chronicle/pkg/domain-errors"
	"chronicle/pkg/platform/httputil"
	"chronicle/pkg/requestcontext"
)

// TokenValidator validates a gateway-forwarded bearer token.
type TokenValidator interface {
	ValidateToken(tokenString string) (*TokenClaims, error)
}

// TokenClaims is the identity unpacked from a validated token.
type TokenClaims struct {
	Subject  string
	UserName string
}

// Identity resolves the acting operator from the Authorization header.
//
// A valid bearer token puts the operator identity into the request context.
// A missing header is not an error: the request proceeds unauthenticated and
// the audit layer records its anonymous sentinel. An invalid token is
// rejected with 401 so a broken gateway cannot silently downgrade writes to
// anonymous.
func Identity(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "rejecting invalid bearer token", "error", err)
				httputil.WriteError(w, domainerrors.New(domainerrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			ctx := requestcontext.WithIdentity(r.Context(), claims.Subject, claims.UserName)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
