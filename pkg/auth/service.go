package auth

import (
	"crypto/subtle"
	"net/http"
)

const ServiceTokenHeader = "x-service-token"

// ServiceToken guards internal endpoints called by other services. An empty
// configured token rejects every request.
func ServiceToken(token string, onError func(w http.ResponseWriter, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(ServiceTokenHeader)
			if got == "" {
				onError(w, ErrMissingCredential)
				return
			}
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				onError(w, ErrInvalidCredential)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
