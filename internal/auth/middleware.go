package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Middleware wraps a handler so it only runs for requests presenting the
// configured token as "Authorization: Bearer <token>". The comparison is
// constant time so the token cannot be probed byte by byte.
func Middleware(token string) func(http.Handler) http.Handler {
	expected := []byte(token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
