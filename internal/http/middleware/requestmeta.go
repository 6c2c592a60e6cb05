package middleware

import (
	"net"
	"net/http"
	"strings"

	"tandem-api/internal/audit"
)

// RequestMetaMiddleware captures the caller's IP address and user agent
// once per request and stores them in the context for audit events.
func RequestMetaMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := audit.RequestMeta{
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
		}
		next.ServeHTTP(w, r.WithContext(audit.WithMeta(r.Context(), meta)))
	})
}

// clientIP prefers the first X-Forwarded-For hop set by the load balancer
// and falls back to the connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
