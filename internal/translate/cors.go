package translate

import (
	"net/http"
	"strings"
)

// CORS returns middleware that sets the cross-origin headers of the translate
// endpoint. No origins, or "*" among them, allows any origin.
func CORS(allowedOrigins ...string) func(http.Handler) http.Handler {
	set := corsHeaders(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			set(w, r)
			next.ServeHTTP(w, r)
		})
	}
}

func corsHeaders(allowedOrigins []string) func(http.ResponseWriter, *http.Request) {
	allowAny := true
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, value := range allowedOrigins {
		origin := strings.TrimSpace(value)
		if origin == "" {
			continue
		}
		if origin == "*" {
			allowAny = true
			allowed = nil
			break
		}
		allowAny = false
		allowed[origin] = struct{}{}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if allowAny {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			w.Header().Set("Vary", "Origin")
			requestOrigin := r.Header.Get("Origin")
			if _, ok := allowed[requestOrigin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", requestOrigin)
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")
	}
}
