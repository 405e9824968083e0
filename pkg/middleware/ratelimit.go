package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	apperrors "github.com/utafrali/authgate/pkg/errors"
	"github.com/utafrali/authgate/pkg/httputil"
	"github.com/utafrali/authgate/pkg/ratelimit"
)

// KeyFunc derives the rate-limit bucket for a request.
type KeyFunc func(r *http.Request) string

// RateLimit rejects requests over the limiter's budget with 429. When the
// limiter itself fails the request is let through and the failure logged.
func RateLimit(limiter ratelimit.Limiter, key KeyFunc, l *slog.Logger) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			ok, err := limiter.Allow(r.Context(), k)
			if err != nil {
				l.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				l.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("key", k),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", "1")
				httputil.WriteError(w, r, apperrors.TooManyRequests("too many requests"), l)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host of the connection's remote address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// TrustedClientIP keys requests on the connection's remote address unless the
// peer is one of trustedProxies. Requests relayed by a trusted proxy are keyed
// on the right-most X-Forwarded-For entry that is not itself a trusted proxy,
// falling back to X-Real-IP. Invalid CIDRs are logged and skipped.
func TrustedClientIP(trustedProxies []string, l *slog.Logger) KeyFunc {
	trusted := parsePrefixes(trustedProxies, l)
	if len(trusted) == 0 {
		return ClientIP
	}

	return func(r *http.Request) string {
		peer := ClientIP(r)
		addr, err := netip.ParseAddr(peer)
		if err != nil || !trusted.contains(addr) {
			return peer
		}

		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			hops := strings.Split(xff, ",")
			for i := len(hops) - 1; i >= 0; i-- {
				hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
				if err != nil {
					break
				}
				if !trusted.contains(hop) {
					return hop.Unmap().String()
				}
			}
		}

		if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
			return xri.Unmap().String()
		}
		return peer
	}
}
