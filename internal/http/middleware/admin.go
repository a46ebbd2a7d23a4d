package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/filmclub/cinema-service/internal/utils/response"
)

// AdminKeyHeader gates the administrative endpoints.
const AdminKeyHeader = "x-admin-key"

// AdminOnly rejects requests whose x-admin-key header does not match the
// configured secret. An empty configured secret means admin endpoints are
// disabled entirely and always reject.
func AdminOnly(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !AdminKeyValid(adminKey, r.Header.Get(AdminKeyHeader)) {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(
					errors.New("invalid admin key")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AdminKeyValid compares a presented admin key in constant time. A blank
// configured key never validates.
func AdminKeyValid(configured, presented string) bool {
	if configured == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}
