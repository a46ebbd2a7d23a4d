package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/filmclub/cinema-service/internal/session"
	"github.com/filmclub/cinema-service/internal/utils/response"
)

type contextKey string

const UserIDKey contextKey = "userID"

// UserTokenHeader carries the per-user bearer token on write endpoints
// acting on that user's resources.
const UserTokenHeader = "x-user-token"

// UserAuth validates the x-user-token header against the session of the
// user addressed by the {id} path segment. "missing session" and "invalid
// token" are surfaced as distinct messages; either way the client must
// re-bootstrap.
func UserAuth(auth *session.Authority) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := strconv.Atoi(r.PathValue("id"))
			if err != nil || userID <= 0 {
				response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(
					errors.New("invalid user id")))
				return
			}

			token := r.Header.Get(UserTokenHeader)
			if token == "" {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(
					errors.New("user token required")))
				return
			}

			if err := auth.Validate(userID, token); err != nil {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(err))
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserIDFromContext extracts the authenticated user id from the request
// context.
func GetUserIDFromContext(ctx context.Context) (int, bool) {
	userID, ok := ctx.Value(UserIDKey).(int)
	return userID, ok
}
