package middleware

import (
	"net/http"
	"strings"

	"github.com/airglance/airglance/internal/api/models"
)

// apiHeaders are set on every response. The API only serves JSON to scripts, so
// nothing may be framed, embedded or executed.
var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Permissions-Policy", "geolocation=(), camera=(), microphone=()"},
	// Dashboards on other origins read responses through CORS.
	{"Cross-Origin-Resource-Policy", "cross-origin"},
}

const hstsValue = "max-age=31536000; includeSubDomains"

// SecurityHeaders adds the API's security headers. Strict-Transport-Security is
// only sent on HTTPS requests; browsers ignore it over plain HTTP.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range apiHeaders {
			h.Set(kv[0], kv[1])
		}
		if isHTTPS(r) {
			h.Set("Strict-Transport-Security", hstsValue)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTLS returns a middleware that rejects requests the load balancer
// received over plain HTTP. Requests without X-Forwarded-Proto (direct
// connections, local development) pass.
func RequireTLS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if proto := forwardedProto(r); proto != "" && proto != "https" {
				writeProblem(w, r, models.KindTLSRequired, "Air quality data is only served over HTTPS")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forwardedProto(r *http.Request) string {
	// A proxy chain may append protocols; the first is the client's.
	proto, _, _ := strings.Cut(r.Header.Get("X-Forwarded-Proto"), ",")
	return strings.ToLower(strings.TrimSpace(proto))
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || forwardedProto(r) == "https"
}
