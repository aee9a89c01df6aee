package middleware

import (
	"net/http"
	"strings"
)

// Normalize cleans up request fields mangled by proxies before routing.
// Trailing whitespace in the path ("/api/tables%20") and a trailing slash
// on API routes are removed, and the forwarded scheme/host are restored.
func Normalize() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := strings.TrimSpace(r.URL.Path)
			if len(p) > 1 && strings.HasPrefix(p, "/api/") {
				p = strings.TrimRight(p, "/")
			}
			if p == "" {
				p = "/"
			}
			r.URL.Path = p

			if xfproto := r.Header.Get("X-Forwarded-Proto"); xfproto != "" {
				r.URL.Scheme = xfproto
			}
			if xfhost := r.Header.Get("X-Forwarded-Host"); xfhost != "" {
				r.Host = xfhost
			}
			next.ServeHTTP(w, r)
		})
	}
}
