package users

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/filmclub/cinema-service/internal/http/middleware"
	"github.com/filmclub/cinema-service/internal/session"
	"github.com/filmclub/cinema-service/internal/storage"
	"github.com/filmclub/cinema-service/internal/types"
	"github.com/filmclub/cinema-service/internal/utils/response"
)

type BootstrapRequest struct {
	UserID   int    `json:"user_id" validate:"required,gt=0"`
	Nickname string `json:"nickname" validate:"required,max=60"`
}

type ProfileSyncRequest struct {
	UserID      int                 `json:"user_id" validate:"required,gt=0"`
	Nickname    string              `json:"nickname" validate:"required,max=60"`
	DisplayName string              `json:"display_name" validate:"max=120"`
	Bio         string              `json:"bio" validate:"max=500"`
	Avatar      string              `json:"avatar"`
	Privacy     *types.PrivacyFlags `json:"privacy"`
}

type ToggleRequest struct {
	Category string `json:"category" validate:"required,oneof=watchlist favorites"`
	MovieID  int    `json:"movie_id" validate:"required,gt=0"`
}

type WatchedRequest struct {
	MovieID int   `json:"movie_id" validate:"required,gt=0"`
	Watched *bool `json:"watched" validate:"required"`
}

type RatingRequest struct {
	MovieID int      `json:"movie_id" validate:"required,gt=0"`
	Rating  *float64 `json:"rating" validate:"required"`
}

type FollowRequest struct {
	FolloweeID int `json:"followee_id" validate:"required,gt=0"`
}

// MovieStateResponse carries the categories visible to the caller. For
// anyone but the owner, categories hidden by the privacy flags are omitted.
type MovieStateResponse struct {
	UserID    int                 `json:"user_id"`
	Nickname  string              `json:"nickname"`
	Watchlist []types.MovieRef    `json:"watchlist,omitempty"`
	Favorites []types.MovieRef    `json:"favorites,omitempty"`
	Watched   []types.MovieRef    `json:"watched,omitempty"`
	Rated     []types.MovieRating `json:"rated,omitempty"`
	Followees []int               `json:"followees,omitempty"`
	Privacy   *types.PrivacyFlags `json:"privacy,omitempty"`
}

// Bootstrap issues a session token for a user id + nickname pair.
// @Summary Bootstrap a user session
// @Tags users
// @Accept json
// @Produce json
// @Param request body BootstrapRequest true "User identity"
// @Success 200 {object} map[string]string "Session token"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Identity conflict"
// @Router /api/users/session/bootstrap [post]
func Bootstrap(auth *session.Authority) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BootstrapRequest

		err := json.NewDecoder(r.Body).Decode(&req)
		if errors.Is(err, io.EOF) {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("request body cannot be empty")))
			return
		} else if err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		validate := validator.New()
		if err := validate.Struct(req); err != nil {
			if ve, ok := err.(validator.ValidationErrors); ok {
				response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(ve))
				return
			}
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		token, err := auth.Bootstrap(req.UserID, req.Nickname)
		if err != nil {
			if errors.Is(err, session.ErrNicknameMismatch) {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(err))
				return
			}
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}
		slog.Info("Session bootstrapped", slog.Int("user_id", req.UserID))

		response.WriteJSON(w, http.StatusOK, map[string]string{
			"user_id": strconv.Itoa(req.UserID),
			"token":   token,
		})
	}
}

// ProfileSync upserts the caller's profile. This is the one endpoint that
// may re-issue a token when the presented one is stale but the nickname
// still matches, so a client with a wiped token store can recover.
// @Summary Sync a user profile
// @Tags users
// @Accept json
// @Produce json
// @Param request body ProfileSyncRequest true "Profile fields"
// @Success 200 {object} response.Response "Profile and current token"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 409 {object} response.Response "Nickname taken"
// @Router /api/users/profile-sync [post]
func ProfileSync(auth *session.Authority, store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProfileSyncRequest

		err := json.NewDecoder(r.Body).Decode(&req)
		if errors.Is(err, io.EOF) {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("request body cannot be empty")))
			return
		} else if err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		validate := validator.New()
		if err := validate.Struct(req); err != nil {
			if ve, ok := err.(validator.ValidationErrors); ok {
				response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(ve))
				return
			}
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		presented := r.Header.Get(middleware.UserTokenHeader)
		token, refreshed, err := auth.SyncAuthorize(req.UserID, req.Nickname, presented)
		if err != nil {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(err))
			return
		}
		if refreshed {
			slog.Info("Session re-bootstrapped during profile sync", slog.Int("user_id", req.UserID))
		}

		profile, err := store.UpsertProfile(req.UserID, req.Nickname, req.DisplayName, req.Bio, req.Avatar)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrNicknameTaken):
				response.WriteJSON(w, http.StatusConflict, response.GeneralError(err))
			case errors.Is(err, storage.ErrAvatarTooLarge):
				response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			default:
				response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			}
			return
		}

		if req.Privacy != nil {
			if err := store.SetPrivacy(req.UserID, *req.Privacy); err != nil {
				response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
				return
			}
			profile.Privacy = *req.Privacy
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Profile synced", map[string]any{
			"profile":   profile,
			"token":     token,
			"refreshed": refreshed,
		}))
	}
}

// MovieState returns a user's engagement lists. The owner (valid token)
// sees everything; everyone else sees only the categories the privacy
// flags expose.
// @Summary Get a user's movie-engagement state
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} MovieStateResponse "Movie state"
// @Failure 404 {object} response.Response "Profile not found"
// @Router /api/users/{id}/movie-state [get]
func MovieState(auth *session.Authority, store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.Atoi(r.PathValue("id"))
		if err != nil || userID <= 0 {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("invalid user id")))
			return
		}

		profile, ok := store.Profile(userID)
		if !ok {
			response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("profile not found")))
			return
		}

		owner := false
		if token := r.Header.Get(middleware.UserTokenHeader); token != "" {
			owner = auth.Validate(userID, token) == nil
		}

		resp := MovieStateResponse{UserID: profile.ID, Nickname: profile.Nickname}
		if owner || profile.Privacy.Watchlist {
			resp.Watchlist = profile.Watchlist
		}
		if owner || profile.Privacy.Favorites {
			resp.Favorites = profile.Favorites
		}
		if owner || profile.Privacy.Watched {
			resp.Watched = profile.Watched
		}
		if owner || profile.Privacy.Rated {
			resp.Rated = profile.Rated
		}
		if owner {
			privacy := profile.Privacy
			resp.Privacy = &privacy
			resp.Followees = store.Followees(userID)
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Movie state fetched", resp))
	}
}

// Toggle flips membership of a catalogue item in the watchlist or
// favorites list. Token-gated at the router.
// @Summary Toggle a movie-state list entry
// @Tags users
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body ToggleRequest true "Category and movie"
// @Success 200 {object} map[string]any "Resulting membership"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Router /api/users/{id}/movie-state/toggle [post]
func Toggle(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		var req ToggleRequest
		if err := decodeAndValidate(r, &req, w); err != nil {
			return
		}

		member, err := store.ToggleListEntry(userID, req.Category, req.MovieID)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("List entry toggled", map[string]any{
			"category": req.Category,
			"movie_id": req.MovieID,
			"member":   member,
		}))
	}
}

// Watched marks or unmarks a catalogue item as watched. Token-gated at the
// router.
// @Summary Set watched state for a movie
// @Tags users
// @Router /api/users/{id}/movie-state/watched [post]
func Watched(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		var req WatchedRequest
		if err := decodeAndValidate(r, &req, w); err != nil {
			return
		}

		if err := store.SetWatched(userID, req.MovieID, *req.Watched); err != nil {
			writeStoreError(w, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Watched state updated", map[string]any{
			"movie_id": req.MovieID,
			"watched":  *req.Watched,
		}))
	}
}

// Rating stores a rating for a catalogue item, clamped into [0,10].
// Token-gated at the router.
// @Summary Rate a movie
// @Tags users
// @Router /api/users/{id}/movie-state/rating [post]
func Rating(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		var req RatingRequest
		if err := decodeAndValidate(r, &req, w); err != nil {
			return
		}

		stored, err := store.SetRating(userID, req.MovieID, *req.Rating)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Rating stored", map[string]any{
			"movie_id": req.MovieID,
			"rating":   stored,
		}))
	}
}

// Privacy overwrites the per-category visibility flags. Token-gated at the
// router.
// @Summary Update movie-state privacy flags
// @Tags users
// @Router /api/users/{id}/movie-state/privacy [post]
func Privacy(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		var flags types.PrivacyFlags
		if err := json.NewDecoder(r.Body).Decode(&flags); err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		if err := store.SetPrivacy(userID, flags); err != nil {
			writeStoreError(w, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Privacy updated", flags))
	}
}

// Follow records a follow edge from the authenticated user. Token-gated at
// the router.
// @Summary Follow a user
// @Tags users
// @Router /api/users/{id}/follow [post]
func Follow(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		followerID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		var req FollowRequest
		if err := decodeAndValidate(r, &req, w); err != nil {
			return
		}

		if err := store.Follow(followerID, req.FolloweeID); err != nil {
			switch {
			case errors.Is(err, storage.ErrSelfFollow):
				response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			case errors.Is(err, storage.ErrNotFound):
				response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("followee not found")))
			default:
				response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			}
			return
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("User followed", nil))
	}
}

// Unfollow removes a follow edge. Token-gated at the router.
// @Summary Unfollow a user
// @Tags users
// @Router /api/users/{id}/follow [delete]
func Unfollow(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		followerID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		var req FollowRequest
		if err := decodeAndValidate(r, &req, w); err != nil {
			return
		}

		if err := store.Unfollow(followerID, req.FolloweeID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("follow relationship not found")))
				return
			}
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("User unfollowed", nil))
	}
}

func decodeAndValidate(r *http.Request, dst any, w http.ResponseWriter) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		err = errors.New("request body cannot be empty")
	}
	if err != nil {
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
		return err
	}

	validate := validator.New()
	if err := validate.Struct(dst); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok {
			response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(ve))
			return err
		}
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
		return err
	}
	return nil
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("profile not found")))
	case errors.Is(err, storage.ErrListFull):
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
	default:
		response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
	}
}
