package gallery

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/filmclub/cinema-service/internal/cache"
	"github.com/filmclub/cinema-service/internal/http/middleware"
	"github.com/filmclub/cinema-service/internal/session"
	"github.com/filmclub/cinema-service/internal/storage"
	"github.com/filmclub/cinema-service/internal/types"
	"github.com/filmclub/cinema-service/internal/utils/response"
)

type CreateItemRequest struct {
	Title     string `json:"title" validate:"required,max=200"`
	MediaURL  string `json:"media_url" validate:"required,url"`
	PosterURL string `json:"poster_url" validate:"omitempty,url"`
	UserID    int    `json:"user_id" validate:"omitempty,gt=0"`
}

type ReactionRequest struct {
	UserID int `json:"user_id" validate:"required,gt=0"`
}

type CommentRequest struct {
	UserID   int    `json:"user_id" validate:"required,gt=0"`
	Text     string `json:"text" validate:"required,max=1000"`
	ParentID int    `json:"parent_id" validate:"omitempty,gt=0"`
	Nickname string `json:"nickname" validate:"max=60"`
	Avatar   string `json:"avatar"`
}

// List returns the gallery with reaction counts.
// @Summary List gallery items
// @Tags gallery
// @Produce json
// @Success 200 {object} response.Response "Gallery items"
// @Router /api/gallery [get]
func List(cacheService *cache.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.WriteJSON(w, http.StatusOK, response.RequestOK("Gallery fetched", cacheService.GalleryItems(r.Context())))
	}
}

// Create adds a gallery item. Callers present either the admin key or a
// valid per-user session.
// @Summary Add a gallery item
// @Tags gallery
// @Accept json
// @Produce json
// @Param item body CreateItemRequest true "Item details"
// @Success 201 {object} response.Response "Item created"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Router /api/gallery [post]
func Create(store *storage.Store, cacheService *cache.Service, auth *session.Authority, adminKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateItemRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		if !middleware.AdminKeyValid(adminKey, r.Header.Get(middleware.AdminKeyHeader)) {
			if req.UserID <= 0 {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("admin key or user session required")))
				return
			}
			if err := auth.Validate(req.UserID, r.Header.Get(middleware.UserTokenHeader)); err != nil {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(err))
				return
			}
		}

		item, err := store.AddGalleryItem(types.GalleryItem{
			Title:     req.Title,
			MediaURL:  req.MediaURL,
			PosterURL: req.PosterURL,
			CreatedBy: req.UserID,
		})
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		cacheService.InvalidateGallery(r.Context())

		response.WriteJSON(w, http.StatusCreated, response.RequestOK("Gallery item created", item))
	}
}

// ToggleLike flips the caller's like on an item.
// @Summary Toggle a gallery like
// @Tags gallery
// @Router /api/gallery/{id}/toggle-like [post]
func ToggleLike(store *storage.Store, cacheService *cache.Service, auth *session.Authority) http.HandlerFunc {
	return toggleReaction(store, cacheService, auth, "like", store.ToggleGalleryLike)
}

// ToggleFavorite flips the caller's favorite on an item.
// @Summary Toggle a gallery favorite
// @Tags gallery
// @Router /api/gallery/{id}/toggle-favorite [post]
func ToggleFavorite(store *storage.Store, cacheService *cache.Service, auth *session.Authority) http.HandlerFunc {
	return toggleReaction(store, cacheService, auth, "favorite", store.ToggleGalleryFavorite)
}

func toggleReaction(store *storage.Store, cacheService *cache.Service, auth *session.Authority, name string, toggle func(userID, itemID int) (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := strconv.Atoi(r.PathValue("id"))
		if err != nil || itemID <= 0 {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("invalid item id")))
			return
		}

		var req ReactionRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		if err := auth.Validate(req.UserID, r.Header.Get(middleware.UserTokenHeader)); err != nil {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(err))
			return
		}

		active, err := toggle(req.UserID, itemID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("gallery item not found")))
				return
			}
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		cacheService.InvalidateGallery(r.Context())

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Reaction toggled", map[string]any{
			"item_id": itemID,
			name:      active,
		}))
	}
}

// Comments returns the comment thread of an item, display identities
// resolved through the authors' profiles.
// @Summary List gallery comments
// @Tags gallery
// @Router /api/gallery/{id}/comments [get]
func Comments(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := strconv.Atoi(r.PathValue("id"))
		if err != nil || itemID <= 0 {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("invalid item id")))
			return
		}

		comments, err := store.GalleryComments(itemID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("gallery item not found")))
				return
			}
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Comments fetched", comments))
	}
}

// PostComment appends a comment to an item's thread. The nickname/avatar
// fields in the request are only stored when the author has no synced
// profile.
// @Summary Post a gallery comment
// @Tags gallery
// @Router /api/gallery/{id}/comments [post]
func PostComment(store *storage.Store, auth *session.Authority) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := strconv.Atoi(r.PathValue("id"))
		if err != nil || itemID <= 0 {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("invalid item id")))
			return
		}

		var req CommentRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		if err := auth.Validate(req.UserID, r.Header.Get(middleware.UserTokenHeader)); err != nil {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(err))
			return
		}

		comment, err := store.AddGalleryComment(itemID, req.UserID, req.ParentID, req.Text, req.Nickname, req.Avatar)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrNotFound):
				response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("gallery item or parent comment not found")))
			case errors.Is(err, storage.ErrCommentTooLong):
				response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			default:
				response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			}
			return
		}

		response.WriteJSON(w, http.StatusCreated, response.RequestOK("Comment posted", comment))
	}
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		err = errors.New("request body cannot be empty")
	}
	if err != nil {
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
		return false
	}

	validate := validator.New()
	if err := validate.Struct(dst); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok {
			response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(ve))
			return false
		}
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
		return false
	}
	return true
}
