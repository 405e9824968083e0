package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	apperrors "github.com/utafrali/authgate/pkg/errors"
	"github.com/utafrali/authgate/pkg/httputil"
	"github.com/utafrali/authgate/pkg/logger"
)

type contextKeyType string

const principalKey contextKeyType = "principal"

// Principal is the authenticated caller as seen by the HTTP layer.
type Principal struct {
	Subject string
	Email   string
	Groups  []string
}

// HasGroup reports whether the principal belongs to group.
func (p *Principal) HasGroup(group string) bool {
	return p != nil && slices.Contains(p.Groups, group)
}

// TokenValidator validates a bearer token and returns the caller it belongs to.
type TokenValidator func(ctx context.Context, token string) (*Principal, error)

// Auth validates the bearer token on every request and stores the resulting
// Principal in the request context. Missing, malformed or rejected tokens get
// a 401 before next runs.
func Auth(validate TokenValidator, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer`)
				httputil.WriteError(w, r, apperrors.Unauthorized("missing or malformed authorization header"), l)
				return
			}

			principal, err := validate(r.Context(), token)
			if err != nil {
				logger.FromContext(r.Context()).DebugContext(r.Context(), "bearer token rejected",
					slog.String("error", err.Error()),
				)
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				httputil.WriteError(w, r, apperrors.Unauthorized("invalid or expired token"), l)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			ctx = logger.WithUserID(ctx, principal.Subject)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("user_id", principal.Subject)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireGroup lets the request through only when the authenticated
// principal belongs to group. It must be mounted after Auth.
func RequireGroup(group string, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), l)
				return
			}
			if !principal.HasGroup(group) {
				httputil.WriteError(w, r, apperrors.Forbidden("insufficient permissions"), l)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal stored by Auth, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}
