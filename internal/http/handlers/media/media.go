package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/filmclub/cinema-service/internal/http/middleware"
	"github.com/filmclub/cinema-service/internal/services/cloudinary"
	"github.com/filmclub/cinema-service/internal/session"
	"github.com/filmclub/cinema-service/internal/utils/response"
)

type MediaHandlers struct {
	cloud    *cloudinary.Client
	auth     *session.Authority
	adminKey string
}

type SignUploadRequest struct {
	ResourceType string `json:"resource_type" validate:"omitempty,oneof=image video"`
	Folder       string `json:"folder" validate:"max=200"`
	PublicID     string `json:"public_id" validate:"max=200"`
	UserID       int    `json:"user_id" validate:"omitempty,gt=0"`
}

type DeleteImageRequest struct {
	URL    string `json:"url" validate:"required,url"`
	UserID int    `json:"user_id" validate:"omitempty,gt=0"`
}

func NewMediaHandlers(cloud *cloudinary.Client, auth *session.Authority, adminKey string) *MediaHandlers {
	return &MediaHandlers{cloud: cloud, auth: auth, adminKey: adminKey}
}

// isAdmin checks the admin-key header; callers without it fall back to the
// per-user session path.
func (h *MediaHandlers) isAdmin(r *http.Request) bool {
	return middleware.AdminKeyValid(h.adminKey, r.Header.Get(middleware.AdminKeyHeader))
}

// SignUpload signs a direct-to-provider upload. Admin callers may sign
// anything; session callers are restricted to image uploads scoped into
// their own u-<id> folder, which is what the deletion ownership check
// later keys on.
// @Summary Sign a media upload
// @Tags media
// @Accept json
// @Produce json
// @Param request body SignUploadRequest true "Upload parameters"
// @Success 200 {object} response.Response "Signed upload parameters"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Router /api/media/cloudinary/sign-upload [post]
func (h *MediaHandlers) SignUpload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignUploadRequest
		if !h.decodeAndValidate(w, r, &req) {
			return
		}

		if !h.isAdmin(r) {
			if req.UserID <= 0 {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("admin key or user session required")))
				return
			}
			if err := h.auth.Validate(req.UserID, r.Header.Get(middleware.UserTokenHeader)); err != nil {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(err))
				return
			}
			if req.ResourceType == "video" {
				response.WriteJSON(w, http.StatusForbidden, response.GeneralError(errors.New("only image uploads are allowed")))
				return
			}
			req.Folder = fmt.Sprintf("avatars/u-%d", req.UserID)
		}

		if req.PublicID == "" {
			req.PublicID = uuid.NewString()
		}

		signed := h.cloud.SignUpload(map[string]string{
			"folder":    req.Folder,
			"public_id": req.PublicID,
		})

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Upload signed", map[string]any{
			"timestamp":  signed.Timestamp,
			"signature":  signed.Signature,
			"api_key":    signed.APIKey,
			"cloud_name": signed.CloudName,
			"folder":     req.Folder,
			"public_id":  req.PublicID,
		}))
	}
}

// DeleteImage deletes a hosted image immediately. There is no background
// retry for this path, so provider failures surface to the caller.
// Non-admin callers may only delete assets inside their own u-<id> scope.
// @Summary Delete a hosted image
// @Tags media
// @Accept json
// @Produce json
// @Param request body DeleteImageRequest true "Asset URL"
// @Success 200 {object} response.Response "Asset deleted"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 403 {object} response.Response "Ownership mismatch"
// @Failure 502 {object} response.Response "Provider failure"
// @Router /api/media/cloudinary/delete-image [post]
func (h *MediaHandlers) DeleteImage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DeleteImageRequest
		if !h.decodeAndValidate(w, r, &req) {
			return
		}

		asset, err := h.cloud.AssetFromURL(req.URL)
		if err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		if !h.isAdmin(r) {
			if req.UserID <= 0 {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("admin key or user session required")))
				return
			}
			if err := h.auth.Validate(req.UserID, r.Header.Get(middleware.UserTokenHeader)); err != nil {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(err))
				return
			}
			if !cloudinary.OwnsAsset(asset.PublicID, req.UserID) {
				response.WriteJSON(w, http.StatusForbidden, response.GeneralError(errors.New("asset does not belong to this user")))
				return
			}
		}

		if err := h.cloud.Destroy(r.Context(), asset); err != nil {
			slog.Error("Foreground asset deletion failed",
				slog.String("public_id", asset.PublicID),
				slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusBadGateway, response.GeneralError(err))
			return
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Asset deleted", map[string]string{
			"public_id": asset.PublicID,
		}))
	}
}

func (h *MediaHandlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
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
